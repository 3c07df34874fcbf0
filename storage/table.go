package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TokDenis/awblog/types"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// postRow is the relational shape of a post: metadata is flattened into columns
// and tags live in a JSON column.
type postRow struct {
	Id               string    `gorm:"primaryKey;size:191"`
	Title            string    `gorm:"size:255;not null"`
	Slug             string    `gorm:"size:255;not null"`
	Description      string    `gorm:"type:text;not null"`
	ImageUrl         string    `gorm:"size:1024"`
	Tags             []string  `gorm:"serializer:json"`
	Author           string    `gorm:"size:255"`
	ReadingTime      int       `gorm:"not null;default:5"`
	Content          string    `gorm:"not null"`
	Featured         bool      `gorm:"not null;default:false"`
	Views            int64     `gorm:"not null;default:0"`
	CreatedTime      time.Time `gorm:"precision:6;index;not null"`
	ModificationTime time.Time `gorm:"precision:6;not null"`
	Version          string    `gorm:"size:32;not null"`
	Status           string    `gorm:"size:64;not null"`
	SeoKeywords      string    `gorm:"size:1024"`
}

func (postRow) TableName() string {
	return "posts"
}

func rowFromPost(p *types.Post) *postRow {
	return &postRow{
		Id:               p.Id,
		Title:            p.Title,
		Slug:             p.Slug,
		Description:      p.Description,
		ImageUrl:         p.ImageUrl,
		Tags:             p.Tags,
		Author:           p.Author,
		ReadingTime:      p.ReadingTime,
		Content:          p.Content,
		Featured:         p.Featured,
		Views:            p.Views,
		CreatedTime:      p.Metadata.CreatedTime,
		ModificationTime: p.Metadata.ModificationTime,
		Version:          p.Metadata.Version,
		Status:           p.Metadata.Status,
		SeoKeywords:      p.Metadata.SeoKeywords,
	}
}

func (r *postRow) post() *types.Post {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &types.Post{
		Id:          r.Id,
		Title:       r.Title,
		Slug:        r.Slug,
		Description: r.Description,
		ImageUrl:    r.ImageUrl,
		Tags:        tags,
		Author:      r.Author,
		ReadingTime: r.ReadingTime,
		Content:     r.Content,
		Featured:    r.Featured,
		Views:       r.Views,
		Metadata: types.Metadata{
			CreatedTime:      r.CreatedTime,
			ModificationTime: r.ModificationTime,
			Version:          r.Version,
			Status:           r.Status,
			SeoKeywords:      r.SeoKeywords,
		},
	}
}

// TableStore keeps posts as rows of the posts table.
type TableStore struct {
	db       *gorm.DB
	defaults Defaults
	now      func() time.Time
}

const (
	connectRetries = 5
	connectBackoff = 2 * time.Second
)

// OpenTableStore connects with driver ("mysql" or "sqlite"), retrying a few
// times while the database comes up, and migrates the posts table.
func OpenTableStore(driver, dsn string, d Defaults) (*TableStore, error) {
	if dsn == "" {
		return nil, errors.New("table store: empty dsn")
	}

	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("table store: unsupported driver %q", driver)
	}

	cfg := &gorm.Config{
		Logger:         NewGormLogger(200 * time.Millisecond),
		TranslateError: true,
	}

	var db *gorm.DB
	var err error
	for i := 0; i < connectRetries; i++ {
		db, err = gorm.Open(dialector, cfg)
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				err = sqlDB.Ping()
			} else {
				err = dbErr
			}
		}
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("retry", i+1).Str("driver", driver).Msg("database not reachable")
		if i < connectRetries-1 {
			time.Sleep(connectBackoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "mysql" {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	if err = db.AutoMigrate(&postRow{}); err != nil {
		return nil, fmt.Errorf("migrate posts table: %w", err)
	}

	log.Info().Str("driver", driver).Msg("table store ready")

	return &TableStore{db: db, defaults: d, now: time.Now}, nil
}

// SetClock replaces the time source, mostly for tests.
func (s *TableStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *TableStore) ListAll(ctx context.Context) ([]*types.Post, error) {
	var rows []*postRow

	err := s.db.WithContext(ctx).Order("created_time DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	posts := make([]*types.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.post())
	}
	return posts, nil
}

func (s *TableStore) GetById(ctx context.Context, id string) (*types.Post, error) {
	row, err := s.get(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return row.post(), nil
}

func (s *TableStore) get(db *gorm.DB, id string) (*postRow, error) {
	var row postRow

	err := db.Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (s *TableStore) Create(ctx context.Context, in types.PostInput) (*types.Post, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	if _, err := s.get(db, in.Id); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	post := newPost(in, s.defaults, s.now())

	err := db.Create(rowFromPost(post)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return post, nil
}

func (s *TableStore) Update(ctx context.Context, id string, patch types.PostPatch) (*types.Post, error) {
	var post *types.Post

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.get(tx, id)
		if err != nil {
			return err
		}

		post = row.post()
		applyPatch(post, patch, s.now())

		return tx.Save(rowFromPost(post)).Error
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Delete is a hard delete; deleting a missing row succeeds.
func (s *TableStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&postRow{}).Error
}

// IncrementViews is one UPDATE statement, so the database serializes concurrent
// increments.
func (s *TableStore) IncrementViews(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&postRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"views":             gorm.Expr("views + ?", 1),
		"modification_time": s.now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Put inserts or fully replaces a post, keeping its metadata as given.
func (s *TableStore) Put(ctx context.Context, post *types.Post) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rowFromPost(post)).Error
}

func (s *TableStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
