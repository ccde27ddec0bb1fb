package echo

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/storage"
)

const ledgerPrefix = "provision/"

// ConfirmationMark is what the ledger stores per confirmed share.
type ConfirmationMark struct {
	ShareIndex  int       `json:"share_index"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Recorder persists which shares of a group have echoed at least once,
// so an operator can tell a half-provisioned group from a complete one
// without keeping the listener alive.
type Recorder struct {
	store   storage.Store
	groupID string
}

func NewRecorder(store storage.Store, groupID string) *Recorder {
	return &Recorder{store: store, groupID: groupID}
}

func (r *Recorder) key(shareIndex int) string {
	return ledgerPrefix + r.groupID + "/" + strconv.Itoa(shareIndex)
}

// MarkConfirmed writes the confirmation mark for a share. Re-marking a
// confirmed share refreshes its timestamp.
func (r *Recorder) MarkConfirmed(shareIndex int) error {
	mark := ConfirmationMark{ShareIndex: shareIndex, ConfirmedAt: time.Now().UTC()}
	value, err := json.Marshal(mark)
	if err != nil {
		return errors.Wrap(err, "failed to encode confirmation mark")
	}
	return r.store.Put(r.key(shareIndex), value)
}

// IsConfirmed reports whether the share has echoed at least once.
func (r *Recorder) IsConfirmed(shareIndex int) (bool, error) {
	_, err := r.store.Get(r.key(shareIndex))
	if err != nil {
		if errors.HasCode(err, errors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Confirmation returns the stored mark for a share. Absent shares keep
// the CodeNotFound classification of the store.
func (r *Recorder) Confirmation(shareIndex int) (*ConfirmationMark, error) {
	value, err := r.store.Get(r.key(shareIndex))
	if err != nil {
		return nil, err
	}
	var mark ConfirmationMark
	if err := json.Unmarshal(value, &mark); err != nil {
		return nil, errors.Wrap(err, "corrupt confirmation mark")
	}
	return &mark, nil
}

// ConfirmedShares lists the confirmed share indexes of the group in
// ascending order.
func (r *Recorder) ConfirmedShares() ([]int, error) {
	keys, err := r.store.Keys()
	if err != nil {
		return nil, err
	}

	prefix := ledgerPrefix + r.groupID + "/"
	indexes := []int{}
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		index, perr := strconv.Atoi(strings.TrimPrefix(key, prefix))
		if perr != nil {
			continue
		}
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	return indexes, nil
}

// Forget removes a share's confirmation mark, for re-provisioning flows.
func (r *Recorder) Forget(shareIndex int) error {
	return r.store.Delete(r.key(shareIndex))
}
