package chapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Node is one unit of chapter content: an optional effect list run on
// entry, and optional player choices published once the list settles.
type Node struct {
	OnEnter []Effect `json:"onEnter,omitempty"`
	Choices []Choice `json:"choices,omitempty"`
}

// Choice is a player-selectable option. A costed choice debits the named
// currency ("diamonds" when CostType is empty) at selection time.
type Choice struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Cost     int      `json:"cost,omitempty"`
	CostType string   `json:"costType,omitempty"`
	Effects  []Effect `json:"effects"`
}

// AssetManifest declares every image and audio key a chapter may
// reference. Character images are keyed character -> emotion -> outfit ->
// source locator; the loader flattens them to character_outfit_emotion
// cache keys.
type AssetManifest struct {
	Images     map[string]string                       `json:"images"`
	Characters map[string]map[string]map[string]string `json:"characters"`
	Audio      map[string]string                       `json:"audio"`
}

// TotalAssets is the number of manifest entries the loader will attempt.
func (m AssetManifest) TotalAssets() int {
	total := len(m.Images) + len(m.Audio)
	for _, emotions := range m.Characters {
		for _, outfits := range emotions {
			total += len(outfits)
		}
	}
	return total
}

// Chapter is the immutable document describing one chapter of a story: a
// directed graph of nodes plus the asset inventory the nodes may use.
type Chapter struct {
	StartNodeID   string          `json:"startNodeId"`
	Nodes         map[string]Node `json:"nodes"`
	AssetManifest AssetManifest   `json:"assetManifest"`
}

// Parse decodes a chapter document and validates its node references.
func Parse(data []byte) (*Chapter, error) {
	var c Chapter
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode chapter: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chapter: %w", err)
	}
	return &c, nil
}

// Load reads a chapter document from disk.
func Load(path string) (*Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapter file %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks that the start node and every node id named by a goto or
// branch effect exists. A dangling reference is fatal at load time; it
// must never surface mid-playback as a frozen engine.
func (c *Chapter) Validate() error {
	var errs []error

	if len(c.Nodes) == 0 {
		errs = append(errs, errors.New("chapter has no nodes"))
	}

	if c.StartNodeID == "" {
		errs = append(errs, errors.New("startNodeId is required"))
	} else if _, ok := c.Nodes[c.StartNodeID]; !ok {
		errs = append(errs, fmt.Errorf("startNodeId %q not found in nodes", c.StartNodeID))
	}

	for id, node := range c.Nodes {
		for i, effect := range node.OnEnter {
			errs = append(errs, c.checkTargets(fmt.Sprintf("node %q onEnter[%d]", id, i), effect)...)
		}
		for _, choice := range node.Choices {
			for i, effect := range choice.Effects {
				errs = append(errs, c.checkTargets(fmt.Sprintf("node %q choice %q effects[%d]", id, choice.ID, i), effect)...)
			}
		}
	}

	return errors.Join(errs...)
}

// checkTargets reports every node id referenced by a flow-control effect
// that does not exist in the node map.
func (c *Chapter) checkTargets(site string, effect Effect) []error {
	var errs []error
	missing := func(target string) bool {
		_, ok := c.Nodes[target]
		return !ok
	}

	switch args := effect.Args.(type) {
	case GotoArgs:
		if args.Target == "" {
			errs = append(errs, fmt.Errorf("%s: goto has no target", site))
		} else if missing(args.Target) {
			errs = append(errs, fmt.Errorf("%s: goto target %q not found", site, args.Target))
		}
	case BranchArgs:
		for j, arm := range args.Conditions {
			if missing(arm.Target) {
				errs = append(errs, fmt.Errorf("%s: branch condition %d target %q not found", site, j, arm.Target))
			}
		}
		if args.Default != "" && missing(args.Default) {
			errs = append(errs, fmt.Errorf("%s: branch default %q not found", site, args.Default))
		}
	}
	return errs
}
