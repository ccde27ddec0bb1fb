package infra

import (
	"time"

	"github.com/fystack/peermon/pkg/config"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/hashicorp/consul/api"
)

// ConsulKV is the slice of the consul KV API the group directory uses.
type ConsulKV interface {
	Put(kv *api.KVPair, options *api.WriteOptions) (*api.WriteMeta, error)
	Get(key string, options *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
	Delete(key string, options *api.WriteOptions) (*api.WriteMeta, error)
	List(prefix string, options *api.QueryOptions) (api.KVPairs, *api.QueryMeta, error)
}

func GetConsulConfig() *api.Config {
	cfg := config.GetConfig()
	consulCfg := cfg.Consul
	if consulCfg == nil {
		consulCfg = &config.ConsulConfig{}
	}

	clientConfig := api.DefaultConfig()
	if consulCfg.Address != "" {
		clientConfig.Address = consulCfg.Address
	}
	if cfg.Environment == config.Production {
		clientConfig.Token = consulCfg.Token
		if consulCfg.Username != "" || consulCfg.Password != "" {
			clientConfig.HttpAuth = &api.HttpBasicAuth{
				Username: consulCfg.Username,
				Password: consulCfg.Password,
			}
		}
	}
	return clientConfig
}

// GetConsulClient builds a consul client and verifies connectivity before
// handing it out. Terminates the process when the directory is
// unreachable, running without it is not useful.
func GetConsulClient(environment string) *api.Client {
	cfg := GetConsulConfig()
	cfg.WaitTime = 10 * time.Second

	logger.Info("Consul config",
		"environment", environment,
		"address", cfg.Address,
		"wait_time", cfg.WaitTime,
		"token_length", len(cfg.Token),
	)

	client, err := api.NewClient(cfg)
	if err != nil {
		logger.Fatal("Failed to create consul client", err)
	}

	if _, err = client.Status().Leader(); err != nil {
		logger.Fatal("Failed to connect to Consul", err)
	}

	return client
}
