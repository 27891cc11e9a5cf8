package repository

import (
	"context"
	"fmt"

	"github.com/digkill/genstudio/internal/models"
)

// ArtifactRepository persists generated images and speeches.
type ArtifactRepository struct {
	db DBTX
}

func NewArtifactRepository(db DBTX) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

func (r *ArtifactRepository) WithTx(tx DBTX) *ArtifactRepository {
	return &ArtifactRepository{db: tx}
}

func (r *ArtifactRepository) CreateImage(ctx context.Context, img *models.Image) error {
	const query = `
INSERT INTO images (id, user_id, prompt, style, revised_prompt, image_url, is_public)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, img.ID, img.UserID, img.Prompt, img.Style, img.RevisedPrompt, img.ImageURL, boolToInt(img.IsPublic)); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) CreateSpeech(ctx context.Context, sp *models.Speech) error {
	const query = `
INSERT INTO speeches (id, user_id, text, voice, speed, speech_url)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, sp.ID, sp.UserID, sp.Text, sp.Voice, sp.Speed, sp.SpeechURL); err != nil {
		return fmt.Errorf("insert speech: %w", err)
	}
	return nil
}

const imageColumns = `id, user_id, prompt, style, revised_prompt, image_url, is_public, created_at`

func (r *ArtifactRepository) queryImages(ctx context.Context, query string, args ...any) ([]models.Image, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	images := make([]models.Image, 0)
	for rows.Next() {
		var img models.Image
		var public int
		if err := rows.Scan(&img.ID, &img.UserID, &img.Prompt, &img.Style, &img.RevisedPrompt, &img.ImageURL, &public, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		img.IsPublic = public != 0
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *ArtifactRepository) ListImagesByUser(ctx context.Context, userID string) ([]models.Image, error) {
	return r.queryImages(ctx, `SELECT `+imageColumns+` FROM images WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (r *ArtifactRepository) ListPublicImages(ctx context.Context, limit int) ([]models.Image, error) {
	return r.queryImages(ctx, `SELECT `+imageColumns+` FROM images WHERE is_public = 1 ORDER BY created_at DESC LIMIT ?`, limit)
}

func (r *ArtifactRepository) ListSpeechesByUser(ctx context.Context, userID string) ([]models.Speech, error) {
	const query = `SELECT id, user_id, text, voice, speed, speech_url, created_at FROM speeches WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query speeches: %w", err)
	}
	defer rows.Close()

	speeches := make([]models.Speech, 0)
	for rows.Next() {
		var sp models.Speech
		if err := rows.Scan(&sp.ID, &sp.UserID, &sp.Text, &sp.Voice, &sp.Speed, &sp.SpeechURL, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan speech: %w", err)
		}
		speeches = append(speeches, sp)
	}
	return speeches, rows.Err()
}

// SetImageVisibility updates an image owned by userID. It reports false if no such image exists.
func (r *ArtifactRepository) SetImageVisibility(ctx context.Context, imageID, userID string, public bool) (bool, error) {
	const query = `UPDATE images SET is_public = ? WHERE id = ? AND user_id = ?`
	res, err := r.db.ExecContext(ctx, query, boolToInt(public), imageID, userID)
	if err != nil {
		return false, fmt.Errorf("set image visibility: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set image visibility rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	// MySQL reports 0 changed rows when the value is unchanged, so confirm ownership explicitly.
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE id = ? AND user_id = ?`, imageID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check image owner: %w", err)
	}
	return exists > 0, nil
}
