package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lunabay/chapter-engine/pkg/chapter"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <chapter.json>\n", os.Args[0])
		os.Exit(1)
	}

	filename := os.Args[1]
	validator := &ChapterValidator{}

	if err := validator.validateFile(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Chapter file is valid!")
}

type ChapterValidator struct {
	errors []string
}

func (v *ChapterValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		return fmt.Errorf("chapter file must have .json extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ".json")
	if !isValidChapterFilename(nameWithoutExt) {
		return fmt.Errorf("chapter filename '%s' must be lowercase snake_case (e.g., my_chapter.json, not my-chapter.json or MyChapter.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	v.errors = nil

	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", filename)
	}

	c, err := chapter.Parse(data)
	if err != nil {
		return fmt.Errorf("file %s failed to parse: %w", filename, err)
	}

	v.validateChapter(c)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

// validateChapter runs the authoring lints that go beyond the fatal
// reference checks chapter.Parse already enforces: id naming and effects
// that point at assets missing from the manifest.
func (v *ChapterValidator) validateChapter(c *chapter.Chapter) {
	for nodeID, node := range c.Nodes {
		v.validateIDFormat("node ID", nodeID)

		for i, effect := range node.OnEnter {
			v.validateEffectAssets(c, fmt.Sprintf("node %s onEnter[%d]", nodeID, i), effect)
		}
		for _, choice := range node.Choices {
			v.validateIDFormat("choice ID", choice.ID)
			if choice.Cost > 0 && choice.CostType != "" &&
				choice.CostType != "diamonds" && choice.CostType != "tickets" {
				v.addError(fmt.Sprintf("node %s choice %s has unknown costType '%s'", nodeID, choice.ID, choice.CostType))
			}
			for i, effect := range choice.Effects {
				v.validateEffectAssets(c, fmt.Sprintf("node %s choice %s effects[%d]", nodeID, choice.ID, i), effect)
			}
		}
	}
}

func (v *ChapterValidator) validateEffectAssets(c *chapter.Chapter, site string, effect chapter.Effect) {
	manifest := c.AssetManifest

	switch args := effect.Args.(type) {
	case nil:
		v.addError(fmt.Sprintf("%s has unknown op '%s' (will be skipped at runtime)", site, effect.Op))
	case chapter.BackgroundArgs:
		if _, ok := manifest.Images[args.ImageKey]; !ok {
			v.addError(fmt.Sprintf("%s references image '%s' not declared in manifest", site, args.ImageKey))
		}
	case chapter.ShowCGArgs:
		if _, ok := manifest.Images[args.ImageKey]; !ok {
			v.addError(fmt.Sprintf("%s references image '%s' not declared in manifest", site, args.ImageKey))
		}
	case chapter.SfxArgs:
		if _, ok := manifest.Audio[args.SrcKey]; !ok {
			v.addError(fmt.Sprintf("%s references audio '%s' not declared in manifest", site, args.SrcKey))
		}
	case chapter.MusicArgs:
		if _, ok := manifest.Audio[args.SrcKey]; !ok {
			v.addError(fmt.Sprintf("%s references audio '%s' not declared in manifest", site, args.SrcKey))
		}
	case chapter.CharacterArgs:
		if args.Action == "hide" {
			return
		}
		if _, ok := manifest.Characters[args.Character]; !ok {
			v.addError(fmt.Sprintf("%s references character '%s' not declared in manifest", site, args.Character))
		}
	}
}

func (v *ChapterValidator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}

	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *ChapterValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var (
	validIDRegex       = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

func isValidChapterFilename(name string) bool {
	// Allow 'x.' prefix for experimental chapters
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
