package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/segment"
)

// document is the on-disk envelope for a single definition.
// YAML is a superset of JSON, so both serializations are accepted.
type document struct {
	Kind string    `yaml:"kind"`
	Spec yaml.Node `yaml:"spec"`
}

// loadDocuments reads one file that may contain multiple YAML documents.
func loadDocuments(path string) ([]document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []document
	dec := yaml.NewDecoder(f)
	for {
		var doc document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// validateDocument validates one document and returns its id plus any
// non-fatal warnings.
func validateDocument(doc document) (string, []string, error) {
	switch doc.Kind {
	case "segment":
		var s segment.Segment
		if err := doc.Spec.Decode(&s); err != nil {
			return "", nil, err
		}
		return s.ID, nil, segment.Validate(s)
	case "experiment":
		var e experiment.Experiment
		if err := doc.Spec.Decode(&e); err != nil {
			return "", nil, err
		}
		return e.ID, nil, experiment.Validate(e)
	case "flow":
		var f flow.Flow
		if err := doc.Spec.Decode(&f); err != nil {
			return "", nil, err
		}
		warnings, err := flow.Validate(f)
		return f.ID, warnings, err
	case "checklist":
		var c flow.Checklist
		if err := doc.Spec.Decode(&c); err != nil {
			return "", nil, err
		}
		return c.ID, nil, flow.ValidateChecklist(c)
	case "results":
		var res resultsSpec
		if err := doc.Spec.Decode(&res); err != nil {
			return "", nil, err
		}
		return res.ExperimentID, nil, validateResults(res)
	default:
		return "", nil, fmt.Errorf("unknown document kind %q", doc.Kind)
	}
}
