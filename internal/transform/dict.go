package transform

import (
	"io"

	"github.com/leapstack-labs/harmonize/internal/csvio"
	"github.com/leapstack-labs/harmonize/internal/dictionary"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// dictColumns is the REDCap layout of a harmonized DICT.
var dictColumns = []dictionary.Column{
	dictionary.ColIdentifier,
	dictionary.ColLabel,
	dictionary.ColSection,
	dictionary.ColType,
	dictionary.ColUnit,
	dictionary.ColAllowedValues,
	dictionary.ColDescription,
	dictionary.ColCDEReference,
}

var redcapTypes = map[core.DataType]string{
	core.DataTypeCategorical: "radio",
	core.DataTypeNumeric:     "number",
	core.DataTypeText:        "text",
	core.DataTypeDate:        "date",
}

// WriteDictionary writes defs as a REDCap data dictionary. The CDE
// Reference column names the authority each definition came from.
func WriteDictionary(w io.Writer, defs []*core.FieldDefinition) error {
	cw := csvio.NewWriter(w)
	header := make([]string, len(dictColumns))
	for i, c := range dictColumns {
		header[i] = dictionary.REDCapName(c)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, d := range defs {
		fieldType := d.FieldType
		if fieldType == "" {
			fieldType = redcapTypes[d.Type]
		}
		if err := cw.Write([]string{
			d.Identifier,
			d.Label,
			d.Section,
			fieldType,
			d.Unit,
			dictionary.FormatChoices(d.AllowedValues),
			d.Description,
			d.Source.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDictionaryFile writes the harmonized DICT to path atomically.
func WriteDictionaryFile(path string, defs []*core.FieldDefinition) error {
	return csvio.WriteFileAtomic(path, func(w io.Writer) error {
		return WriteDictionary(w, defs)
	})
}
