package groupinfo

import (
	"strconv"
	"strings"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/engine"
)

// StoreDecoder resolves directory references into engine packages. A
// group credential is the group ID, a share credential is
// "<group_id>/<share_index>". The member list in the directory supplies
// the share's public key, nothing is ever derived locally.
type StoreDecoder struct {
	store Store
}

var _ engine.Decoder = &StoreDecoder{}

func NewStoreDecoder(store Store) *StoreDecoder {
	return &StoreDecoder{store: store}
}

func (d *StoreDecoder) DecodeGroup(credential string) (*engine.GroupPackage, error) {
	groupID := strings.TrimSpace(credential)
	if groupID == "" {
		return nil, errors.NewWithCode(errors.CodeCredential, "empty group credential")
	}

	info, err := d.store.Get(groupID)
	if err != nil {
		return nil, errors.WrapWithCode(errors.CodeCredential, err, "unknown group "+groupID)
	}
	return &engine.GroupPackage{
		ID:         groupID,
		MemberKeys: info.MemberKeys,
		Threshold:  info.Threshold,
	}, nil
}

func (d *StoreDecoder) DecodeShare(credential string) (*engine.SharePackage, error) {
	ref := strings.TrimSpace(credential)
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, errors.NewWithCode(errors.CodeCredential, "share credential must be <group_id>/<share_index>")
	}

	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return nil, errors.NewWithCode(errors.CodeCredential, "invalid share index in credential")
	}

	info, err := d.store.Get(parts[0])
	if err != nil {
		return nil, errors.WrapWithCode(errors.CodeCredential, err, "unknown group "+parts[0])
	}
	if index >= len(info.MemberKeys) {
		return nil, errors.NewWithCode(errors.CodeCredential, "share index out of range for group "+parts[0])
	}

	return &engine.SharePackage{
		GroupID: parts[0],
		Index:   index,
		PubKey:  info.MemberKeys[index],
	}, nil
}
