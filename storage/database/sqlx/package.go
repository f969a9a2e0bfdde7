package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core/cmi"
	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

type packageRow struct {
	ID              string       `db:"id"`
	Version         string       `db:"version"`
	Title           string       `db:"title"`
	LaunchURL       string       `db:"launch_url"`
	LaunchData      string       `db:"launch_data"`
	Organization    string       `db:"organization"`
	TypicalDuration cmi.Duration `db:"typical_duration"`
}

// PackageCatalog reads package descriptors from the scorm_package table.
type PackageCatalog struct {
	db *sqlx.DB
}

var _ scorm.PackageCatalog = (*PackageCatalog)(nil) // interface compliance check

func NewPackageCatalog(db *sqlx.DB) *PackageCatalog {
	return &PackageCatalog{db: db}
}

func (cat *PackageCatalog) GetPackage(ctx context.Context, id string) (scorm.Package, error) {
	var row packageRow
	q := cat.db.Rebind(`SELECT * FROM scorm_package WHERE id = ?`)
	if err := cat.db.GetContext(ctx, &row, q, id); err != nil {
		return scorm.Package{}, trapNoRowsErr(err, scorm.ErrPackageNotFound, "selecting package")
	}
	return row.pkg()
}

func (cat *PackageCatalog) ListPackages(ctx context.Context) ([]scorm.Package, error) {
	var rows []packageRow
	if err := cat.db.SelectContext(ctx, &rows, `SELECT * FROM scorm_package ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "selecting packages")
	}
	pkgs := make([]scorm.Package, 0, len(rows))
	for _, row := range rows {
		pkg, err := row.pkg()
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// SavePackage inserts or replaces a package descriptor.
func (cat *PackageCatalog) SavePackage(ctx context.Context, pkg scorm.Package) error {
	org, err := json.Marshal(pkg.Organization)
	if err != nil {
		return errors.Wrap(err, "encoding organization")
	}
	row := packageRow{
		ID:              pkg.ID,
		Version:         string(pkg.Version),
		Title:           pkg.Title,
		LaunchURL:       pkg.LaunchURL,
		LaunchData:      pkg.LaunchData,
		Organization:    string(org),
		TypicalDuration: pkg.TypicalDuration,
	}
	q := `INSERT INTO scorm_package (id, version, title, launch_url, launch_data, organization, typical_duration)
	VALUES (:id, :version, :title, :launch_url, :launch_data, :organization, :typical_duration)
	ON CONFLICT (id) DO UPDATE SET
	version = excluded.version, title = excluded.title, launch_url = excluded.launch_url,
	launch_data = excluded.launch_data, organization = excluded.organization,
	typical_duration = excluded.typical_duration`
	if _, err = cat.db.NamedExecContext(ctx, q, row); err != nil {
		return errors.Wrap(err, "saving package")
	}
	return nil
}

func (row packageRow) pkg() (scorm.Package, error) {
	pkg := scorm.Package{
		ID:              row.ID,
		Version:         cmi.Version(row.Version),
		Title:           row.Title,
		LaunchURL:       row.LaunchURL,
		LaunchData:      row.LaunchData,
		TypicalDuration: row.TypicalDuration,
	}
	if err := json.Unmarshal([]byte(row.Organization), &pkg.Organization); err != nil {
		return scorm.Package{}, errors.Wrapf(err, "decoding organization of package %s", row.ID)
	}
	return pkg, nil
}
