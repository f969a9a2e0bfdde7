package catalogsvc

import (
	"context"
	"fmt"
	"io"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/qahhor/FREE-LMS-sub001/core"
	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

type (
	catalogDoc struct {
		Packages []packageDoc `yaml:"packages"`
	}

	packageDoc struct {
		ID              string  `yaml:"id"`
		Version         string  `yaml:"version"`
		Title           string  `yaml:"title"`
		LaunchURL       string  `yaml:"launch_url"`
		LaunchData      string  `yaml:"launch_data"`
		TypicalDuration string  `yaml:"typical_duration"`
		Organization    itemDoc `yaml:"organization"`
	}

	itemDoc struct {
		Identifier string    `yaml:"identifier"`
		Title      string    `yaml:"title"`
		Href       string    `yaml:"href"`
		Items      []itemDoc `yaml:"items"`
	}
)

// PackageSaver stores package descriptors.
type PackageSaver interface {
	SavePackage(ctx context.Context, pkg scorm.Package) error
}

// Loader reads package descriptors from YAML, as exported by the package upload service.
type Loader struct {
	validate   *validator.Validate
	translator ut.Translator
}

func NewLoader(validate *validator.Validate, translator ut.Translator) *Loader {
	return &Loader{validate: validate, translator: translator}
}

func (d itemDoc) items() []scorm.Item {
	if len(d.Items) == 0 {
		return nil
	}
	items := make([]scorm.Item, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, scorm.Item{Identifier: it.Identifier, Title: it.Title, Href: it.Href, Items: it.items()})
	}
	return items
}

func (d packageDoc) pkg() (scorm.Package, error) {
	pkg := scorm.Package{
		ID:         core.CleanString(d.ID),
		Version:    cmi.Version(core.CleanString(d.Version)),
		Title:      core.CleanString(d.Title),
		LaunchURL:  core.CleanString(d.LaunchURL),
		LaunchData: d.LaunchData,
		Organization: scorm.Organization{
			Identifier: d.Organization.Identifier,
			Title:      d.Organization.Title,
			Items:      d.Organization.items(),
		},
	}
	if d.TypicalDuration != "" {
		dur, err := cmi.ParseISODuration(d.TypicalDuration)
		if err != nil {
			return scorm.Package{}, core.NewValidationError(err, core.FieldError{Field: "typical_duration", Error: err.Error()})
		}
		pkg.TypicalDuration = dur
	}
	return pkg, nil
}

// Load decodes and validates the packages of a catalog document.
func (l *Loader) Load(r io.Reader) ([]scorm.Package, error) {
	var doc catalogDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding catalog")
	}

	seen := make(map[string]bool, len(doc.Packages))
	pkgs := make([]scorm.Package, 0, len(doc.Packages))
	for i, d := range doc.Packages {
		pkg, err := d.pkg()
		if err == nil {
			err = core.TranslateValidationErrors(l.validate.Struct(pkg), l.translator)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "package #%d", i+1)
		}
		if seen[pkg.ID] {
			return nil, errors.Errorf("package #%d: duplicate id %q", i+1, pkg.ID)
		}
		seen[pkg.ID] = true
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

func (l *Loader) LoadFile(path string) ([]scorm.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening catalog")
	}
	defer func() { _ = f.Close() }()
	return l.Load(f)
}

// Import saves the packages of a catalog file and returns how many were saved.
func (l *Loader) Import(ctx context.Context, saver PackageSaver, path string) (int, error) {
	pkgs, err := l.LoadFile(path)
	if err != nil {
		return 0, err
	}
	for _, pkg := range pkgs {
		if err = saver.SavePackage(ctx, pkg); err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("saving package %s", pkg.ID))
		}
	}
	return len(pkgs), nil
}
