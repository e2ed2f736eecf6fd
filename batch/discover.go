package batch

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/zing22845/go-wxcrypt/dbcrypt"
)

// Discover walks srcDIR and builds a task for every container (*.db) and blob
// (*.dat). Outputs mirror the relative layout of srcDIR below destDIR. When
// destDIR lies inside srcDIR it is not descended into.
func Discover(srcDIR, destDIR, key string, xorKey byte, profile dbcrypt.Profile) (tasks []Task, err error) {
	srcDIR, err = filepath.Abs(srcDIR)
	if err != nil {
		return nil, errors.Wrap(err, "resolve source directory")
	}
	destDIR, err = filepath.Abs(destDIR)
	if err != nil {
		return nil, errors.Wrap(err, "resolve destination directory")
	}
	err = filepath.WalkDir(srcDIR, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == destDIR && path != srcDIR {
				return fs.SkipDir
			}
			return nil
		}
		// hidden files include our own temp outputs
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(srcDIR, path)
		if err != nil {
			return err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ContainerExt:
			tasks = append(tasks, Task{
				Kind:        TaskContainer,
				Profile:     profile,
				Key:         key,
				Source:      path,
				Destination: filepath.Join(destDIR, rel),
			})
		case BlobExt:
			tasks = append(tasks, Task{
				Kind:        TaskBlob,
				XorKey:      xorKey,
				Source:      path,
				Destination: filepath.Join(destDIR, filepath.Dir(rel)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", srcDIR)
	}
	return tasks, nil
}
