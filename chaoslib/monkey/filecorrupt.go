package monkey

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/stressforge/harness-go/chaoslib/injector"
	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
	"github.com/stressforge/harness-go/pkg/types"
)

type corruptionPayload struct {
	Marker  string    `json:"marker"`
	Written time.Time `json:"written"`
	Values  []int     `json:"values"`
}

// fileCorruption writes a known JSON document, damages it through the
// corruption injector and verifies the backup restore brings back a
// document that still parses to the original content. Recovery here is the
// restore itself, not a resource level.
func (m *Monkey) fileCorruption(ctx context.Context) error {
	if err := os.MkdirAll(m.opts.ScratchDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create scratch directory")
	}
	path := filepath.Join(m.opts.ScratchDir, "corruption_target.json")
	defer os.Remove(path)

	payload := corruptionPayload{
		Marker:  "corruption-canary",
		Written: time.Now().UTC(),
		Values:  []int{1, 1, 2, 3, 5, 8, 13, 21, 34, 55},
	}
	original, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal canary document")
	}
	if err := os.WriteFile(path, original, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %v", path)
	}

	corrupt := injector.NewCorruption(1.0, injector.CorruptRandomBytes)
	if _, err := corrupt.TryInject(ctx, &injector.Context{Path: path}); err != nil {
		return err
	}

	damaged, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %v", path)
	}
	if bytes.Equal(damaged, original) {
		return cerrors.Generic{
			Phase:  types.ChaosInject,
			Reason: "corruption left the file unchanged",
		}
	}
	log.Infof("[Inject]: Corrupted %v, restoring from backup", path)

	if restored := corrupt.RestoreAll(); restored != 1 {
		return cerrors.Generic{
			Phase:  types.Recovery,
			Reason: "backup restore did not recover the file",
		}
	}
	recovered, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %v", path)
	}
	var roundTrip corruptionPayload
	if err := json.Unmarshal(recovered, &roundTrip); err != nil {
		return cerrors.Generic{
			Phase:  types.Recovery,
			Reason: "restored document no longer parses: " + err.Error(),
		}
	}
	if roundTrip.Marker != payload.Marker || len(roundTrip.Values) != len(payload.Values) {
		return cerrors.Generic{
			Phase:  types.Recovery,
			Reason: "restored document differs from the original",
		}
	}
	return nil
}
