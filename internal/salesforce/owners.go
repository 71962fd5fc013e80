package salesforce

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PSOwner is a product specialist and their branch.
type PSOwner struct {
	Name   string `yaml:"name"`
	Branch string `yaml:"branch"`
}

// OwnerMap maps Salesforce owner names to CRM agents.
type OwnerMap struct {
	// CRE maps owner name to CRE name.
	CRE map[string]string `yaml:"cre"`
	// PS maps owner name to PS.
	PS map[string]PSOwner `yaml:"ps"`
	// CREQueues are queue owners whose leads stay unassigned.
	CREQueues []string `yaml:"cre_queues"`
	// DefaultCRE is recorded as cre_name on PS-owned leads.
	DefaultCRE string `yaml:"default_cre"`
}

// OwnerKind classifies a lead owner.
type OwnerKind int

const (
	OwnerUnmapped OwnerKind = iota
	OwnerCRE
	OwnerPS
	OwnerQueue
)

// LoadOwnerMap reads the YAML owner mapping. A missing file yields an
// empty map so every lead goes to the distributor.
func LoadOwnerMap(path string) (*OwnerMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &OwnerMap{}, nil
		}
		return nil, eris.Wrapf(err, "read owner map %s", path)
	}
	return ParseOwnerMap(data)
}

// ParseOwnerMap decodes a YAML owner mapping.
func ParseOwnerMap(data []byte) (*OwnerMap, error) {
	var m OwnerMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "parse owner map")
	}
	for owner, ps := range m.PS {
		if strings.TrimSpace(ps.Name) == "" || strings.TrimSpace(ps.Branch) == "" {
			return nil, eris.Errorf("owner map: ps %q needs name and branch", owner)
		}
	}
	return &m, nil
}

// Resolve classifies owner. Queue owners win over a CRE entry with the
// same name.
func (m *OwnerMap) Resolve(owner string) (OwnerKind, string, PSOwner) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return OwnerUnmapped, "", PSOwner{}
	}
	for _, q := range m.CREQueues {
		if q == owner {
			return OwnerQueue, "", PSOwner{}
		}
	}
	if ps, ok := m.PS[owner]; ok {
		return OwnerPS, "", ps
	}
	if cre, ok := m.CRE[owner]; ok {
		return OwnerCRE, cre, PSOwner{}
	}
	return OwnerUnmapped, "", PSOwner{}
}
