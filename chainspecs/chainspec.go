package chainspecs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"embed"

	"github.com/nocturnelabs/nocturne/types"
)

//go:embed *.json
var configFS embed.FS

var networkFile = map[string]string{
	"devnet":   "devnet-spec.json",
	"localnet": "localnet-spec.json",
}

// ReadSpec loads a chainspec by network id, falling back to treating id as a
// filesystem path for custom specs.
func ReadSpec(id string) (*types.ChainSpec, error) {
	var data []byte
	var err error
	if path, ok := networkFile[id]; ok {
		data, err = configFS.ReadFile(path)
	} else {
		data, err = os.ReadFile(id)
	}
	if err != nil {
		return nil, err
	}
	spec := types.ChainSpec{}
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("chainspec %s: %w", id, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("chainspec %s: %w", id, err)
	}
	return &spec, nil
}

// Networks lists the embedded network ids.
func Networks() []string {
	out := make([]string, 0, len(networkFile))
	for id := range networkFile {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
