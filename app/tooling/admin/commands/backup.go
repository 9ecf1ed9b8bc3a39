package commands

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/sqlite"
	"go.uber.org/zap"
)

// Backup copies the stored files and the index into the backup folder.
func Backup(log *zap.SugaredLogger, dbPath string, indexPath string, dir string) error {
	d, err := disk.New(dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	files, err := d.Backup(dir)
	if err != nil {
		return err
	}

	index, err := sqlite.Open(indexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	file, err := index.Backup(dir)
	if err != nil {
		return err
	}
	files = append(files, file)

	for _, file := range files {
		log.Infow("backup", "file", file)
		fmt.Println(file)
	}

	return nil
}
