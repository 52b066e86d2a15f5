package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrFolderNotEmpty = errors.New("folder is not empty")
)

var (
	bucketFiles   = []byte("files")
	bucketFolders = []byte("folders")
)

// File is a drive record pointing at a blob stored in the backing
// message store.
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FolderID  string    `json:"folderId,omitempty"`
	MessageID int       `json:"messageId"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimeType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Folder groups file records. An empty ParentID means the root.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists file and folder records in a local bbolt database. The
// actual bytes live in the message store; these records only carry the
// mapping.
type Store struct {
	db *bolt.DB
}

func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open drive store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketFolders)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateFile(f *File) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketFiles), f.ID, f)
	})
}

func (s *Store) GetFile(id string) (*File, error) {
	var f File
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketFiles), id, &f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFiles returns the records in one folder; an empty folderID lists
// the root.
func (s *Store) ListFiles(folderID string) ([]File, error) {
	files := make([]File, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var f File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.FolderID == folderID {
				files = append(files, f)
			}
			return nil
		})
	})
	return files, err
}

// FilePatch carries the mutable fields of a file record. Nil fields are
// left unchanged.
type FilePatch struct {
	Name     *string `json:"name,omitempty"`
	FolderID *string `json:"folderId,omitempty"`
}

func (s *Store) UpdateFile(id string, patch FilePatch) (*File, error) {
	var f File
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if err := getJSON(b, id, &f); err != nil {
			return err
		}
		if patch.Name != nil {
			f.Name = *patch.Name
		}
		if patch.FolderID != nil {
			f.FolderID = *patch.FolderID
		}
		f.UpdatedAt = time.Now().UTC()
		return putJSON(b, id, &f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) DeleteFile(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if b.Get([]byte(id)) == nil {
			return ErrRecordNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *Store) CreateFolder(f *Folder) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketFolders), f.ID, f)
	})
}

func (s *Store) ListFolders(parentID string) ([]Folder, error) {
	folders := make([]Folder, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFolders).ForEach(func(_, v []byte) error {
			var f Folder
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.ParentID == parentID {
				folders = append(folders, f)
			}
			return nil
		})
	})
	return folders, err
}

// DeleteFolder removes an empty folder. Folders still holding files or
// subfolders are refused. The emptiness check and the delete run in one
// transaction so a concurrent create cannot slip in between.
func (s *Store) DeleteFolder(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		folders := tx.Bucket(bucketFolders)
		if folders.Get([]byte(id)) == nil {
			return ErrRecordNotFound
		}

		err := tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var f File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.FolderID == id {
				return ErrFolderNotEmpty
			}
			return nil
		})
		if err != nil {
			return err
		}

		err = folders.ForEach(func(_, v []byte) error {
			var f Folder
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.ParentID == id {
				return ErrFolderNotEmpty
			}
			return nil
		})
		if err != nil {
			return err
		}

		return folders.Delete([]byte(id))
	})
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(b *bolt.Bucket, key string, v interface{}) error {
	data := b.Get([]byte(key))
	if data == nil {
		return ErrRecordNotFound
	}
	return json.Unmarshal(data, v)
}
