package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/harmonize/internal/blob"
	"github.com/leapstack-labs/harmonize/internal/report"
	"github.com/leapstack-labs/harmonize/internal/submission"
	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Publish results per object.
const (
	PublishUploaded  = "uploaded"
	PublishReplaced  = "replaced"
	PublishUnchanged = "unchanged"
)

// MetaSHA256 is the object metadata key holding the content digest.
const MetaSHA256 = "sha256"

// PublishResult is the outcome of publishing one study.
type PublishResult struct {
	Study   string
	Skipped bool
	Reason  string
	// Objects maps each object key to its publish result.
	Objects map[string]string
}

// Publish uploads the origcopy/ and transformcopy/ files of each study to
// store under prefix. A study is published only when phases 1 and 2 left no
// findings and phase 3 left no errors. Objects whose stored digest matches
// the local file are left alone.
func (p *Pipeline) Publish(ctx context.Context, store blob.Store, studies []string, prefix string) ([]PublishResult, error) {
	out := make([]PublishResult, 0, len(studies))
	for _, study := range studies {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := p.publishStudy(ctx, store, study, prefix)
		out = append(out, res)
		if err != nil {
			return out, &StudyError{Study: study, Err: err}
		}
	}
	return out, nil
}

func (p *Pipeline) publishStudy(ctx context.Context, store blob.Store, study, prefix string) (PublishResult, error) {
	res := PublishResult{Study: study, Objects: make(map[string]string)}
	logger := p.logger.With("study", study, "driver", string(store.Driver()))
	layout := NewLayout(p.settings.DataDir, study)

	if reason, err := publishable(layout); err != nil {
		return res, err
	} else if reason != "" {
		res.Skipped, res.Reason = true, reason
		logger.Info("not publishing study", "reason", reason)
		return res, nil
	}

	dirs := []struct {
		dir  string
		role submission.Role
	}{
		{layout.OrigCopy(), submission.RoleOrigCopy},
		{layout.TransformCopy(), submission.RoleTransformCopy},
	}
	for _, d := range dirs {
		triplets, err := submission.Collect(d.dir, study, d.role)
		if err != nil {
			return res, err
		}
		for _, t := range triplets {
			for _, k := range tripletKinds {
				key := path.Join(prefix, study, string(d.role), t.File(k))
				result, err := p.publishFile(ctx, store, t.Path(k), key)
				if err != nil {
					return res, fmt.Errorf("publishing %s: %w", key, err)
				}
				res.Objects[key] = result
				p.metrics.Published(result)
				logger.Debug("published object", "key", key, "result", result)
			}
		}
	}
	if len(res.Objects) == 0 {
		res.Skipped, res.Reason = true, "no harmonized files"
	}
	logger.Info("study published", "objects", len(res.Objects))
	return res, nil
}

// publishable returns a reason when the study's logs do not allow
// publishing.
func publishable(l Layout) (string, error) {
	if ok, ph, err := l.clean(core.Phase3); err != nil {
		return "", err
	} else if !ok {
		return fmt.Sprintf("phase %d log is not clean", ph), nil
	}
	ok, err := report.ErrorFree(l.ErrorLog(core.Phase3))
	if err != nil {
		return "", err
	}
	if !ok {
		return "phase 3 log has errors", nil
	}
	if !dirExists(l.TransformCopy()) {
		return "phase 3 has not run", nil
	}
	return "", nil
}

func (p *Pipeline) publishFile(ctx context.Context, store blob.Store, file, key string) (string, error) {
	digest, err := fileSHA256(file)
	if err != nil {
		return "", err
	}
	result := PublishUploaded
	info, err := store.Head(ctx, key)
	switch {
	case errors.Is(err, blob.ErrNotFound):
	case err != nil:
		return "", err
	case metadataValue(info.Metadata, MetaSHA256) == digest:
		return PublishUnchanged, nil
	default:
		if _, err := store.Delete(ctx, key); err != nil {
			return "", err
		}
		result = PublishReplaced
	}

	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	_, err = store.Put(ctx, key, f, blob.PutOptions{
		ContentType: "text/csv",
		Metadata: map[string]string{
			MetaSHA256: digest,
			"file":     filepath.Base(file),
		},
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// metadataValue looks up key ignoring case; S3 returns metadata keys
// canonicalized.
func metadataValue(md map[string]string, key string) string {
	if v, ok := md[key]; ok {
		return v
	}
	for k, v := range md {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
