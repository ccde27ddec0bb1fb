// Package groupinfo is the group directory: which members a signing
// group has, its threshold and the relays it meets on. Nodes register
// their group here once and every other tool resolves credentials
// against it.
package groupinfo

import (
	"encoding/json"
	"strings"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/infra"
	"github.com/hashicorp/consul/api"
)

const keyPrefix = "threshold_groupinfo/"

// GroupInfo is one directory record. MemberKeys are stored normalized,
// the member at index i holds share i.
type GroupInfo struct {
	MemberKeys []string `json:"member_keys"`
	Threshold  int      `json:"threshold"`
	Relays     []string `json:"relays,omitempty"`
}

type Store interface {
	Get(groupID string) (*GroupInfo, error)
	Save(groupID string, info *GroupInfo) error
	List() ([]string, error)
}

type consulStore struct {
	consulKV infra.ConsulKV
}

var _ Store = &consulStore{}

func NewConsulStore(consulKV infra.ConsulKV) Store {
	return &consulStore{consulKV: consulKV}
}

func (s *consulStore) Get(groupID string) (*GroupInfo, error) {
	pair, _, err := s.consulKV.Get(composeKey(groupID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get group info")
	}
	if pair == nil {
		return nil, errors.NewWithCode(errors.CodeNotFound, "group info not found")
	}

	info := &GroupInfo{}
	if err := json.Unmarshal(pair.Value, info); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal group info")
	}
	return info, nil
}

func (s *consulStore) Save(groupID string, info *GroupInfo) error {
	bytes, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "failed to marshal group info")
	}

	pair := &api.KVPair{Key: composeKey(groupID), Value: bytes}
	if _, err := s.consulKV.Put(pair, nil); err != nil {
		return errors.Wrap(err, "failed to save group info")
	}
	return nil
}

func (s *consulStore) List() ([]string, error) {
	pairs, _, err := s.consulKV.List(keyPrefix, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list group info")
	}

	ids := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		ids = append(ids, strings.TrimPrefix(pair.Key, keyPrefix))
	}
	return ids, nil
}

func composeKey(groupID string) string {
	return keyPrefix + groupID
}
