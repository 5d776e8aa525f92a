package duckdb

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/asklake/asklake/internal/storage"
)

// download copies each table's objects into dir and returns local paths per qualified name.
func download(ctx context.Context, store storage.ObjectStore, tables []Table, dir string) (map[string][]string, error) {
	local := make(map[string][]string, len(tables))
	for _, table := range tables {
		for index, key := range table.Keys {
			target := filepath.Join(dir, fmt.Sprintf("%s_%s_%d.parquet", table.Schema, table.Name, index))
			if err := copyObject(ctx, store, key, target); err != nil {
				return nil, fmt.Errorf("load %s from %q: %w", table.QualifiedName(), key, err)
			}
			local[table.QualifiedName()] = append(local[table.QualifiedName()], target)
		}
	}
	return local, nil
}

func copyObject(ctx context.Context, store storage.ObjectStore, key, target string) error {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
