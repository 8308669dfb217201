package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
)

type SoftwareModel struct {
	UUID                string `gorm:"primaryKey"`
	Name                string `gorm:"index"`
	Version             string
	SHA256              string `gorm:"index"`
	SHA1                string
	MD5                 string
	Size                int64
	Vendor              string
	Description         string
	Comments            string
	RecordedInstitution string
	CaptureTime         int64
	Metadata            string
}

func (SoftwareModel) TableName() string { return "software" }

type PathModel struct {
	ID           uint   `gorm:"primaryKey"`
	SoftwareUUID string `gorm:"not null;index"`
	Kind         string `gorm:"not null;index"`
	Value        string `gorm:"not null"`
	Position     int    `gorm:"not null"`
}

func (PathModel) TableName() string { return "paths" }

type RelationshipModel struct {
	ID           uint   `gorm:"primaryKey"`
	XUUID        string `gorm:"column:x_uuid;not null;index:idx_relationship,unique"`
	YUUID        string `gorm:"column:y_uuid;not null;index:idx_relationship,unique"`
	Relationship string `gorm:"not null;index:idx_relationship,unique"`
}

func (RelationshipModel) TableName() string { return "relationships" }

const (
	pathKindFile      = "fileName"
	pathKindInstall   = "installPath"
	pathKindContainer = "containerPath"
	vendorSeparator   = "\x1f"
)

// OpenSQLite opens (or creates) the SQLite database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Discard})
}

// WriteSQLite stores the SBOM in a fresh SQLite database at outputPath.
func WriteSQLite(sbom *model.SBOM, outputPath string, _ Options) error {
	if outputPath == "-" {
		return errors.New("sqlite output needs a file path, not stdout")
	}
	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", outputPath, err)
	}

	db, err := OpenSQLite(outputPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", outputPath, err)
	}
	defer closeDB(db)

	if err := db.AutoMigrate(&SoftwareModel{}, &PathModel{}, &RelationshipModel{}); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, sw := range sbom.Software {
			m, err := toSoftwareModel(sw)
			if err != nil {
				return err
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("failed to insert software %s: %w", sw.UUID, err)
			}
			paths := pathModels(sw)
			if len(paths) == 0 {
				continue
			}
			if err := tx.CreateInBatches(paths, 100).Error; err != nil {
				return fmt.Errorf("failed to insert paths of %s: %w", sw.UUID, err)
			}
		}

		rels := make([]RelationshipModel, 0, len(sbom.Relationships))
		for _, r := range sbom.Relationships {
			rels = append(rels, RelationshipModel{XUUID: r.XUUID, YUUID: r.YUUID, Relationship: r.Relationship})
		}
		if len(rels) > 0 {
			if err := tx.CreateInBatches(rels, 100).Error; err != nil {
				return fmt.Errorf("failed to insert relationships: %w", err)
			}
		}
		return nil
	})
}

// ReadSQLite loads an SBOM previously written by WriteSQLite.
func ReadSQLite(path string) (*model.SBOM, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer closeDB(db)

	var rows []SoftwareModel
	if err := db.Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read software: %w", err)
	}
	var paths []PathModel
	if err := db.Order("software_uuid, kind, position").Find(&paths).Error; err != nil {
		return nil, fmt.Errorf("failed to read paths: %w", err)
	}
	var rels []RelationshipModel
	if err := db.Order("id").Find(&rels).Error; err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}

	sbom := model.New()
	byUUID := make(map[string]*model.Software, len(rows))
	for _, m := range rows {
		sw, err := fromSoftwareModel(m)
		if err != nil {
			return nil, err
		}
		byUUID[sw.UUID] = sw
		sbom.AddSoftware(sw)
	}
	for _, p := range paths {
		sw := byUUID[p.SoftwareUUID]
		if sw == nil {
			continue
		}
		switch p.Kind {
		case pathKindFile:
			sw.FileName = append(sw.FileName, p.Value)
		case pathKindInstall:
			sw.InstallPath = append(sw.InstallPath, p.Value)
		case pathKindContainer:
			sw.ContainerPath = append(sw.ContainerPath, p.Value)
		}
	}
	for _, r := range rels {
		sbom.CreateRelationship(r.XUUID, r.YUUID, r.Relationship)
	}
	return sbom, nil
}

func toSoftwareModel(sw *model.Software) (SoftwareModel, error) {
	md, err := json.Marshal(sw.Metadata)
	if err != nil {
		return SoftwareModel{}, fmt.Errorf("failed to encode metadata of %s: %w", sw.UUID, err)
	}
	return SoftwareModel{
		UUID:                sw.UUID,
		Name:                sw.Name,
		Version:             sw.Version,
		SHA256:              sw.SHA256,
		SHA1:                sw.SHA1,
		MD5:                 sw.MD5,
		Size:                sw.Size,
		Vendor:              strings.Join(sw.Vendor, vendorSeparator),
		Description:         sw.Description,
		Comments:            sw.Comments,
		RecordedInstitution: sw.RecordedInstitution,
		CaptureTime:         sw.CaptureTime,
		Metadata:            string(md),
	}, nil
}

func fromSoftwareModel(m SoftwareModel) (*model.Software, error) {
	sw := &model.Software{
		UUID:                m.UUID,
		Name:                m.Name,
		Version:             m.Version,
		SHA256:              m.SHA256,
		SHA1:                m.SHA1,
		MD5:                 m.MD5,
		Size:                m.Size,
		Description:         m.Description,
		Comments:            m.Comments,
		RecordedInstitution: m.RecordedInstitution,
		CaptureTime:         m.CaptureTime,
	}
	if m.Vendor != "" {
		sw.Vendor = strings.Split(m.Vendor, vendorSeparator)
	}
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &sw.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of %s: %w", m.UUID, err)
		}
	}
	return sw, nil
}

func pathModels(sw *model.Software) []PathModel {
	var out []PathModel
	add := func(kind string, values []string) {
		for i, v := range values {
			out = append(out, PathModel{SoftwareUUID: sw.UUID, Kind: kind, Value: v, Position: i})
		}
	}
	add(pathKindFile, sw.FileName)
	add(pathKindInstall, sw.InstallPath)
	add(pathKindContainer, sw.ContainerPath)
	return out
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		//nolint:errcheck // nothing useful to do on close failure
		sqlDB.Close()
	}
}
