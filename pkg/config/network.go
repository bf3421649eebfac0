package config

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed networks/*.yaml
var networkFS embed.FS

// Network is a preset selectable by name.
type Network struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ChainID     string `yaml:"chain_id"`

	// GenesisHash is empty when the preset leaves it to the config file.
	GenesisHash string `yaml:"genesis_hash"`
}

var (
	networksOnce sync.Once
	networks     map[string]Network
	networksErr  error
)

func loadNetworks() (map[string]Network, error) {
	networksOnce.Do(func() {
		entries, err := networkFS.ReadDir("networks")
		if err != nil {
			networksErr = err
			return
		}
		networks = make(map[string]Network, len(entries))
		for _, e := range entries {
			data, err := networkFS.ReadFile("networks/" + e.Name())
			if err != nil {
				networksErr = err
				return
			}
			var n Network
			if err := yaml.Unmarshal(data, &n); err != nil {
				networksErr = fmt.Errorf("parse network %s: %w", e.Name(), err)
				return
			}
			networks[n.Name] = n
		}
	})
	return networks, networksErr
}

// LookupNetwork returns the preset called name.
func LookupNetwork(name string) (Network, error) {
	all, err := loadNetworks()
	if err != nil {
		return Network{}, err
	}
	n, ok := all[strings.ToLower(name)]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(NetworkNames(), ", "))
	}
	return n, nil
}

// NetworkNames lists the preset names in sorted order.
func NetworkNames() []string {
	all, _ := loadNetworks()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
