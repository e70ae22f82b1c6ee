package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// FilmRepository stores film records in Postgres and answers keyword lookups.
type FilmRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenPostgres connects to dsn with gorm's own logging silenced.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPostgresUnreachable, err)
	}
	return db, nil
}

// NewFilmRepository wraps an open database handle.
func NewFilmRepository(db *gorm.DB, logger *slog.Logger) *FilmRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilmRepository{db: db, logger: logger.With("repo", "films")}
}

// Migrate creates or updates the films table.
func (r *FilmRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Film{}); err != nil {
		return fmt.Errorf("migrate films: %w", err)
	}
	return nil
}

// Health pings the database.
func (r *FilmRepository) Health(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("postgres handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPostgresUnreachable, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *FilmRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// KeywordSearch returns ids of films whose title, basic details or raw
// details contain term, case-insensitively, ordered by title.
func (r *FilmRepository) KeywordSearch(ctx context.Context, term string) ([]string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptyKeyword
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&Film{}).
		Where("LOWER(search_text) LIKE ?", "%"+escapeLike(strings.ToLower(term))+"%").
		Order("title ASC").
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("keyword search %q: %w", term, err)
	}
	return ids, nil
}

// GetFilm loads one film record by id.
func (r *FilmRepository) GetFilm(ctx context.Context, id string) (*FilmRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilmID, id)
	}

	var row Film
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFilmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get film %s: %w", id, err)
	}
	return row.Record()
}

// UpsertFilm inserts or replaces a film record.
func (r *FilmRepository) UpsertFilm(ctx context.Context, rec *FilmRecord) error {
	row, err := NewFilmRow(rec)
	if err != nil {
		return err
	}
	// Save updates every column when the primary key exists.
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("upsert film %s: %w", rec.ID, err)
	}
	return nil
}

// NewFilmRow converts a record into its table row, building the keyword
// search text from the title and every detail value.
func NewFilmRow(rec *FilmRecord) (*Film, error) {
	if _, err := uuid.Parse(rec.ID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilmID, rec.ID)
	}
	basic, err := json.Marshal(rec.BasicDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal basic details: %w", err)
	}
	raw := rec.RawDetails
	if raw == nil {
		raw = map[string]string{}
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal raw details: %w", err)
	}
	poster := rec.Poster
	if poster == "" {
		poster = NoImage
	}
	return &Film{
		ID:           rec.ID,
		Title:        rec.Title,
		Poster:       poster,
		BasicDetails: basic,
		RawDetails:   rawJSON,
		SearchText:   searchText(rec),
	}, nil
}

// Record converts the row back into its wire shape.
func (f *Film) Record() (*FilmRecord, error) {
	rec := &FilmRecord{
		ID:         f.ID,
		Title:      f.Title,
		Poster:     f.Poster,
		RawDetails: map[string]string{},
	}
	if rec.Poster == "" {
		rec.Poster = NoImage
	}
	if len(f.BasicDetails) > 0 {
		if err := json.Unmarshal(f.BasicDetails, &rec.BasicDetails); err != nil {
			return nil, fmt.Errorf("decode basic details of %s: %w", f.ID, err)
		}
	}
	if len(f.RawDetails) > 0 {
		if err := json.Unmarshal(f.RawDetails, &rec.RawDetails); err != nil {
			return nil, fmt.Errorf("decode raw details of %s: %w", f.ID, err)
		}
	}
	return rec, nil
}

func searchText(rec *FilmRecord) string {
	parts := []string{rec.Title}
	b := rec.BasicDetails
	parts = append(parts, b.DirectedBy, b.Language, b.Country, b.RunningTime, b.Starring)

	keys := make([]string, 0, len(rec.RawDetails))
	for k := range rec.RawDetails {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, rec.RawDetails[k])
	}

	var sb strings.Builder
	for _, p := range parts {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p)
	}
	return sb.String()
}

// escapeLike escapes LIKE wildcards so user terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
