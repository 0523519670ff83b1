// Package api holds the serializable definitions of JSON feed modules.
package api

import (
	"fmt"
	"slices"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Child value types.
const (
	TypeAuto   = "auto"
	TypeBool   = "bool"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeString = "string"
	TypeNode   = "node"
)

// FeedSet is the root of a feed definition file.
//
//	feed "weather" {
//	  source = "weather.json"
//	  child "Wind" {
//	    type = "node"
//	    child "Speed" { type = "float", affix = "m/s" }
//	  }
//	}
type FeedSet struct {
	Feeds []Feed `hcl:"feed,block"`
}

// Feed maps a JSON document to the data model of one module.
type Feed struct {
	// ID doubles as the module ID.
	ID          string `hcl:"id,label"`
	Name        string `hcl:"name,optional"`
	Description string `hcl:"description,optional"`
	// Source is the JSON file, relative to the feed filesystem root.
	Source string `hcl:"source"`
	// Lazy feeds only recompute children that some Path refers to.
	Lazy     bool    `hcl:"lazy,optional"`
	Children []Child `hcl:"child,block"`
}

// Child is one dynamic child of a feed or of a node child.
type Child struct {
	Key string `hcl:"key,label"`
	// Type is one of auto, bool, int, float, string or node. Empty means auto.
	Type string `hcl:"type,optional"`
	// Selector is a JSONPath evaluated against the parent's value. Empty
	// selects the member named Key.
	Selector    string  `hcl:"selector,optional"`
	Name        string  `hcl:"name,optional"`
	Description string  `hcl:"description,optional"`
	Prefix      string  `hcl:"prefix,optional"`
	Affix       string  `hcl:"affix,optional"`
	Children    []Child `hcl:"child,block"`
}

// LoadFeeds reads and validates a feed definition file from fs.
func LoadFeeds(fs billy.Filesystem, filename string) (*FeedSet, error) {
	src, err := util.ReadFile(fs, filename)
	if err != nil {
		return nil, fmt.Errorf("read feeds %s: %w", filename, err)
	}
	return ParseFeeds(filename, src)
}

// ParseFeeds decodes HCL source. The filename selects the syntax (.hcl or .json)
// and appears in diagnostics.
func ParseFeeds(filename string, src []byte) (*FeedSet, error) {
	var set FeedSet
	if err := hclsimple.Decode(filename, src, nil, &set); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// ReservedKeys are the static properties of a feed's root model. Top-level
// children cannot use them.
var ReservedKeys = []string{"Source", "Updated", "Errors"}

// Validate checks IDs, keys and child types.
func (s *FeedSet) Validate() error {
	seen := make(map[string]bool)
	for _, f := range s.Feeds {
		if f.ID == "" {
			return fmt.Errorf("feed: empty id")
		}
		if seen[f.ID] {
			return fmt.Errorf("feed %q: duplicate id", f.ID)
		}
		seen[f.ID] = true
		if f.Source == "" {
			return fmt.Errorf("feed %q: empty source", f.ID)
		}
		for _, c := range f.Children {
			if slices.Contains(ReservedKeys, c.Key) {
				return fmt.Errorf("feed %s: key %q is reserved", f.ID, c.Key)
			}
		}
		if err := validateChildren(f.ID, f.Children); err != nil {
			return err
		}
	}
	return nil
}

func validateChildren(where string, children []Child) error {
	keys := make(map[string]bool)
	for _, c := range children {
		at := where + "." + c.Key
		if c.Key == "" || strings.Contains(c.Key, ".") {
			return fmt.Errorf("feed %s: invalid key %q", where, c.Key)
		}
		if keys[c.Key] {
			return fmt.Errorf("feed %s: duplicate key", at)
		}
		keys[c.Key] = true

		switch c.ValueType() {
		case TypeAuto, TypeBool, TypeInt, TypeFloat, TypeString:
			if len(c.Children) > 0 {
				return fmt.Errorf("feed %s: only node children may have children", at)
			}
		case TypeNode:
			if err := validateChildren(at, c.Children); err != nil {
				return err
			}
		default:
			return fmt.Errorf("feed %s: unknown type %q", at, c.Type)
		}
	}
	return nil
}

// ValueType returns the declared type, defaulting to auto.
func (c Child) ValueType() string {
	if c.Type == "" {
		return TypeAuto
	}
	return c.Type
}
