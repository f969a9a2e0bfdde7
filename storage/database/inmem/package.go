package inmemdb

import (
	"context"

	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

// PackageCatalog serves the packages saved in an in-memory DB.
type PackageCatalog struct {
	db *DB
}

var _ scorm.PackageCatalog = (*PackageCatalog)(nil)

func NewPackageCatalog(db *DB) *PackageCatalog {
	return &PackageCatalog{db: db}
}

// SavePackage stores or replaces a package, as the upload service would.
func (cat *PackageCatalog) SavePackage(_ context.Context, pkg scorm.Package) error {
	cat.db.mutex.Lock()
	defer cat.db.mutex.Unlock()
	cat.db.packages[pkg.ID] = pkg
	return nil
}

func (cat *PackageCatalog) GetPackage(_ context.Context, id string) (scorm.Package, error) {
	cat.db.mutex.RLock()
	defer cat.db.mutex.RUnlock()

	if pkg, ok := cat.db.packages[id]; ok {
		return pkg, nil
	}
	return scorm.Package{}, scorm.ErrPackageNotFound
}
