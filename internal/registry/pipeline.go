// Package registry publishes new assets. Registration is a strictly ordered
// pipeline: authorize the acting brand, pin the media, pin the metadata
// document, then commit the ledger record. A stage failure aborts every
// later stage and is reported as that stage's failure; there is no rollback
// of earlier stages, which is safe because pinned content is
// content-addressed and idempotent to re-upload or abandon.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"provenly.org/internal/ledger"
	"provenly.org/internal/storage"
	"provenly.org/internal/wallet"
)

// ErrNotAuthorized means the acting account is not a registered brand.
var ErrNotAuthorized = errors.New("registry: account is not a registered brand")

// Stage names the pipeline step a failure occurred in.
type Stage string

const (
	StageConnect        Stage = "connect"
	StageAuthorize      Stage = "authorize"
	StageUploadImages   Stage = "upload_images"
	StageUploadMetadata Stage = "upload_metadata"
	StageCommit         Stage = "commit"
)

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("registry: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage extracts the stage from a pipeline error, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// Metadata is the off-ledger asset document, written once at registration
// and immutable thereafter. Images are content ids in input order.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

// Asset is the committed result of a registration.
type Asset struct {
	ID          string
	Name        string
	Description string
	MetadataCID string
	Registrant  wallet.Account
	Tx          wallet.TxHandle
}

// Detail combines the ledger record with its dereferenced metadata and
// display URLs, for an asset view.
type Detail struct {
	Record    ledger.AssetRecord
	Metadata  Metadata
	ImageURLs []string
}

// Pipeline orchestrates asset publication across storage and ledger.
type Pipeline struct {
	contract *ledger.Contract
	store    storage.Store
	urlTTL   time.Duration
	newID    func() string
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithIDGenerator overrides asset id generation.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// WithSignedURLTTL overrides the validity window of display URLs.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(p *Pipeline) { p.urlTTL = ttl }
}

func NewPipeline(contract *ledger.Contract, store storage.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		contract: contract,
		store:    store,
		urlTTL:   time.Hour,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register publishes a new asset for the acting brand. The brand check runs
// before any upload; it is advisory on this side of the wire, and the
// ledger re-checks on commit.
func (p *Pipeline) Register(ctx context.Context, acting wallet.Account, name, description string, images [][]byte) (Asset, error) {
	if acting.IsZero() {
		return Asset{}, stageErr(StageConnect, wallet.ErrNotConnected)
	}

	isBrand, err := p.contract.VerifyBrand(ctx, acting)
	if err != nil {
		return Asset{}, stageErr(StageAuthorize, err)
	}
	if !isBrand {
		return Asset{}, stageErr(StageAuthorize, ErrNotAuthorized)
	}

	assetID := p.newID()

	imageCIDs := make([]string, 0, len(images))
	for i, img := range images {
		id, err := p.store.Put(ctx, img)
		if err != nil {
			return Asset{}, stageErr(StageUploadImages, fmt.Errorf("image %d: %w", i, err))
		}
		imageCIDs = append(imageCIDs, id)
	}

	meta := Metadata{Name: name, Description: description, Images: imageCIDs}
	metadataCID, err := p.store.PutJSON(ctx, meta, assetID)
	if err != nil {
		return Asset{}, stageErr(StageUploadMetadata, err)
	}

	tx, err := p.contract.RegisterAsset(ctx, acting, assetID, name, metadataCID)
	if err != nil {
		return Asset{}, stageErr(StageCommit, err)
	}

	return Asset{
		ID:          assetID,
		Name:        name,
		Description: description,
		MetadataCID: metadataCID,
		Registrant:  acting,
		Tx:          tx,
	}, nil
}

// Detail loads the asset record, dereferences its metadata document and
// mints signed display URLs for each image.
func (p *Pipeline) Detail(ctx context.Context, assetID string) (Detail, error) {
	rec, err := p.contract.Asset(ctx, assetID)
	if err != nil {
		return Detail{}, err
	}

	doc, err := p.store.Get(ctx, rec.MetadataCID)
	if err != nil {
		return Detail{}, fmt.Errorf("dereference metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(doc, &meta); err != nil {
		return Detail{}, fmt.Errorf("decode metadata: %w", err)
	}

	urls := make([]string, 0, len(meta.Images))
	for _, imageCID := range meta.Images {
		url, err := p.store.SignedURL(ctx, imageCID, p.urlTTL)
		if err != nil {
			return Detail{}, fmt.Errorf("sign image url: %w", err)
		}
		urls = append(urls, url)
	}

	return Detail{Record: rec, Metadata: meta, ImageURLs: urls}, nil
}

// UserAssets lists ids of assets currently owned by addr.
func (p *Pipeline) UserAssets(ctx context.Context, addr wallet.Account) ([]string, error) {
	return p.contract.UserAssets(ctx, addr)
}
