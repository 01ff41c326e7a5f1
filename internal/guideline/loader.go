package guideline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// Loader reads a guideline corpus directory into an immutable snapshot.
type Loader struct {
	logger *logrus.Logger
}

// NewLoader creates a corpus loader.
func NewLoader(logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{logger: logger}
}

// Load reads index.json, then every path or glob pattern in loading_order.
// Malformed JSON or a missing index is fatal; cross-reference violations are
// returned as data on the corpus.
func (l *Loader) Load(rootDir string) (*domain.Corpus, error) {
	indexPath := filepath.Join(rootDir, "index.json")
	indexData, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrInvalidCorpus, indexPath, err)
	}

	var index domain.IndexDoc
	if err := json.Unmarshal(indexData, &index); err != nil {
		return nil, fmt.Errorf("%w: parsing index.json: %v", domain.ErrInvalidCorpus, err)
	}

	corpus := &domain.Corpus{
		Index:      index,
		Infections: make(map[string]*domain.InfectionDoc),
		Drugs:      make(map[string]*domain.DrugDoc),
		Modifiers: domain.Modifiers{
			Raw: make(map[string]json.RawMessage),
		},
	}

	for _, entry := range index.LoadingOrder {
		paths, err := l.resolveEntry(rootDir, entry)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			if err := l.loadFile(corpus, rootDir, path); err != nil {
				return nil, err
			}
		}
	}

	corpus.Violations = validateCrossReferences(corpus)

	l.logger.WithFields(logrus.Fields{
		"version":    index.Version,
		"infections": len(corpus.Infections),
		"drugs":      len(corpus.Drugs),
		"modifiers":  len(corpus.Modifiers.Raw),
		"violations": len(corpus.Violations),
	}).Info("Guideline corpus loaded")

	for _, v := range corpus.Violations {
		l.logger.WithField("violation", v).Warn("Cross-reference violation")
	}

	return corpus, nil
}

// resolveEntry expands one loading_order entry into concrete file paths.
// Glob results come back sorted, which keeps load order stable across runs.
func (l *Loader) resolveEntry(rootDir, entry string) ([]string, error) {
	if !strings.Contains(entry, "*") {
		return []string{filepath.Join(rootDir, entry)}, nil
	}
	paths, err := filepath.Glob(filepath.Join(rootDir, entry))
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", domain.ErrInvalidCorpus, entry, err)
	}
	if len(paths) == 0 {
		l.logger.WithField("pattern", entry).Warn("Loading order pattern matched no files")
	}
	return paths, nil
}

// loadFile parses one corpus file into its slot, keyed by file stem.
func (l *Loader) loadFile(corpus *domain.Corpus, rootDir, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", domain.ErrInvalidCorpus, path, err)
	}

	rel, err := filepath.Rel(rootDir, path)
	if err != nil {
		rel = path
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dir := filepath.Dir(filepath.ToSlash(rel))

	switch dir {
	case "infections":
		doc := &domain.InfectionDoc{}
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidCorpus, rel, err)
		}
		if doc.InfectionID == "" {
			doc.InfectionID = stem
		}
		if _, exists := corpus.Infections[stem]; !exists {
			corpus.InfectionOrder = append(corpus.InfectionOrder, stem)
		}
		corpus.Infections[stem] = doc

	case "drugs":
		doc := &domain.DrugDoc{}
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidCorpus, rel, err)
		}
		if doc.DrugID == "" {
			doc.DrugID = stem
		}
		if _, exists := corpus.Drugs[stem]; !exists {
			corpus.DrugOrder = append(corpus.DrugOrder, stem)
		}
		corpus.Drugs[stem] = doc

	case "modifiers":
		corpus.Modifiers.Raw[stem] = json.RawMessage(data)
		if err := decodeModifier(corpus, stem, data); err != nil {
			return fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidCorpus, rel, err)
		}

	default:
		// index.json is loaded up front; anything else in loading_order is
		// an authoring mistake worth surfacing but not fatal.
		l.logger.WithField("path", rel).Warn("Unrecognized corpus file, skipping")
	}

	return nil
}

func decodeModifier(corpus *domain.Corpus, stem string, data []byte) error {
	switch stem {
	case "allergy_rules":
		doc := &domain.AllergyRules{}
		if err := json.Unmarshal(data, doc); err != nil {
			return err
		}
		corpus.Modifiers.Allergy = doc
	case "pregnancy_rules":
		doc := &domain.PregnancyRules{}
		if err := json.Unmarshal(data, doc); err != nil {
			return err
		}
		corpus.Modifiers.Pregnancy = doc
	case "renal_adjustment_rules":
		doc := &domain.RenalRules{}
		if err := json.Unmarshal(data, doc); err != nil {
			return err
		}
		corpus.Modifiers.Renal = doc
	}
	return nil
}

// validateCrossReferences checks corpus closure: every drug id referenced by
// any regimen must have a monograph. Every violation is listed, none are
// silently dropped.
func validateCrossReferences(corpus *domain.Corpus) []string {
	var violations []string

	for _, infectionID := range corpus.InfectionOrder {
		doc := corpus.Infections[infectionID]
		for _, category := range doc.Categories {
			for i, regimen := range category.Regimens {
				for _, drugID := range regimen.Drugs {
					if _, ok := corpus.Drugs[drugID]; !ok {
						violations = append(violations, fmt.Sprintf(
							"infection %s category %s regimen %d references unknown drug %s",
							infectionID, category.Name, i, drugID))
					}
				}
			}
		}
	}

	if corpus.Modifiers.Renal != nil {
		for _, drugID := range sortedKeys(corpus.Modifiers.Renal.DrugsRequiringAdjustment) {
			if _, ok := corpus.Drugs[drugID]; !ok {
				violations = append(violations, fmt.Sprintf(
					"renal_adjustment_rules references unknown drug %s", drugID))
			}
		}
	}

	for _, infectionID := range sortedIndexKeys(corpus.Index.Infections) {
		if _, ok := corpus.Infections[infectionID]; !ok {
			violations = append(violations, fmt.Sprintf(
				"index lists infection %s with no protocol file", infectionID))
		}
	}

	return violations
}

func sortedKeys(m map[string]domain.RenalDrugRule) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIndexKeys(m map[string]domain.IndexInfection) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
