package rewrite

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/sitekeeper/pkg/logger"
	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed rules.schema.yaml
var rulesSchemaYAML []byte

// ruleSpec is one entry of a rule file:
//
//	rules:
//	  - id: nav-stylesheet
//	    old: nav.css
//	    new: unified-nav.css # null or omitted removes every match
//	  - id: minified-styles
//	    old: '(\w+)\.css'
//	    new: '$1.min.css'
//	    regex: true
//	    guard: '.min.css' # required when new holds group references
//	  - id: unified-nav-script
//	    insert: '<script src="../js/unified-nav.js"></script>'
//	    anchor: '</body>'
//	    position: before
type ruleSpec struct {
	ID         string  `json:"id"`
	Old        string  `json:"old"`
	New        *string `json:"new"`
	Regex      bool    `json:"regex"`
	Guard      string  `json:"guard"`
	GuardRegex bool    `json:"guard_regex"`
	Insert     string  `json:"insert"`
	Anchor     string  `json:"anchor"`
	Position   string  `json:"position"`
}

type ruleFile struct {
	Rules []ruleSpec `json:"rules"`
}

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	var tmp any
	if err := yaml.Unmarshal(rulesSchemaYAML, &tmp); err != nil {
		return nil, fmt.Errorf("failed to parse rules schema: %w", err)
	}
	// Avoid any remote fetch of the meta-schema.
	if m, ok := tmp.(map[string]interface{}); ok {
		delete(m, "$schema")
	}
	jb, err := json.Marshal(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules schema: %w", err)
	}
	sch, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(jb))
	if err != nil {
		return nil, fmt.Errorf("failed to load rules schema: %w", err)
	}
	return sch, nil
})

// LoadRulesFile reads an ordered rule list from a .yaml/.yml, .toml or .json file.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- rules path supplied by the operator
	if err != nil {
		return nil, &siteerrors.RuleError{Source: path, Message: "cannot read rules file", Cause: err}
	}
	return ParseRules(path, data)
}

// ParseRules decodes rule file content. The format is chosen by the
// extension of source.
func ParseRules(source string, data []byte) ([]Rule, error) {
	var doc any
	var err error
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".toml":
		var m map[string]interface{}
		err = toml.Unmarshal(data, &m)
		doc = m
	case ".json":
		err = json.Unmarshal(data, &doc)
	default:
		return nil, &siteerrors.RuleError{Source: source, Message: "unsupported rules file extension (want .yaml, .yml, .toml or .json)"}
	}
	if err != nil {
		return nil, &siteerrors.RuleError{Source: source, Message: "cannot parse rules file", Cause: err}
	}

	// Validate the generic document, then decode the canonical JSON form.
	jb, err := json.Marshal(doc)
	if err != nil {
		return nil, &siteerrors.RuleError{Source: source, Message: "cannot encode rules", Cause: err}
	}
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	res, err := sch.Validate(gojsonschema.NewBytesLoader(jb))
	if err != nil {
		return nil, &siteerrors.RuleError{Source: source, Message: "schema validation failed", Cause: err}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, verr := range res.Errors() {
			field := verr.Field()
			if field == "" {
				field = "root"
			}
			msgs = append(msgs, field+": "+verr.Description())
		}
		return nil, &siteerrors.RuleError{Source: source, Message: strings.Join(msgs, "; ")}
	}

	var file ruleFile
	if err := json.Unmarshal(jb, &file); err != nil {
		return nil, &siteerrors.RuleError{Source: source, Message: "cannot decode rules", Cause: err}
	}

	rules := make([]Rule, 0, len(file.Rules))
	seen := make(map[string]struct{}, len(file.Rules))
	for i, spec := range file.Rules {
		if spec.ID == "" {
			spec.ID = fmt.Sprintf("rule-%d", i+1)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, &siteerrors.RuleError{Source: source, RuleID: spec.ID, Message: "duplicate rule id"}
		}
		seen[spec.ID] = struct{}{}

		r, err := spec.build()
		if err != nil {
			return nil, &siteerrors.RuleError{Source: source, RuleID: spec.ID, Message: "invalid rule", Cause: err}
		}
		rules = append(rules, r)
	}
	logger.Debug("Loaded rewrite rules", logger.String("source", source), logger.Int("count", len(rules)))
	return rules, nil
}

func (s ruleSpec) matcher(pattern string, regex bool) (Matcher, error) {
	if regex {
		return Regex(pattern)
	}
	return Literal(pattern), nil
}

func (s ruleSpec) build() (Rule, error) {
	var r Rule
	if s.Insert != "" {
		anchor, err := s.matcher(s.Anchor, s.Regex)
		if err != nil {
			return r, err
		}
		pos := Position(s.Position)
		if pos == "" {
			pos = Before
		}
		r = InsertIfAbsent(s.ID, anchor, pos, s.Insert)
	} else {
		m, err := s.matcher(s.Old, s.Regex)
		if err != nil {
			return r, err
		}
		if s.New == nil {
			r = Remove(s.ID, m)
		} else {
			r = Replace(s.ID, m, *s.New)
		}
	}
	if s.Guard != "" {
		g, err := s.matcher(s.Guard, s.GuardRegex)
		if err != nil {
			return r, err
		}
		r = r.WithGuard(Present(g))
	}
	return r, r.Validate()
}
