package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
)

// Mode selects which split of the dataset a run evaluates.
type Mode string

const (
	ModeVal   Mode = "val"
	ModeDev   Mode = "dev"
	ModeTrain Mode = "train"
)

// ParseMode validates a dataset selector.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeVal, ModeDev, ModeTrain:
		return m, nil
	default:
		return "", evalerr.Configf("unknown dataset mode %q (want val, dev or train)", s)
	}
}

// Files names the per-mode input files of a run.
type Files struct {
	Dataset  string
	IDMap    string
	Captions string
	// Collection is the vector index collection holding this split's image embeddings.
	Collection string
}

// DefaultFiles returns the conventional file names for a mode.
func DefaultFiles(m Mode) Files {
	switch m {
	case ModeDev:
		return Files{
			Dataset:    "WebQA_dev_image.json",
			IDMap:      "WebQA_dev_index_to_id.json",
			Captions:   "WebQA_vanilla_caption_train_dev_image.json",
			Collection: "WebQA_dev_image_large",
		}
	case ModeTrain:
		return Files{
			Dataset:    "WebQA_train_image.json",
			IDMap:      "WebQA_train_index_to_id.json",
			Captions:   "WebQA_vanilla_caption_train_dev_image.json",
			Collection: "WebQA_train_image_large",
		}
	default:
		return Files{
			Dataset:    "WebQA_val_image_objects.json",
			IDMap:      "WebQA_val_index_to_id.json",
			Captions:   "WebQA_vanilla_caption_val_image.json",
			Collection: "WebQA_val_image_large",
		}
	}
}

// IDMap maps index positions to external image identifiers.
type IDMap map[string]string

// LoadIDMap reads a {"<position>": <image id>} JSON object.
func LoadIDMap(p string) (IDMap, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read id map: %w", err)
	}
	var raw map[string]ImageID
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse id map %s: %w", p, err)
	}
	m := make(IDMap, len(raw))
	for k, v := range raw {
		m[k] = string(v)
	}
	return m, nil
}

// Resolve returns the image identifier stored at an index position.
func (m IDMap) Resolve(pos int64) (string, error) {
	id, ok := m[positionKey(pos)]
	if !ok {
		return "", evalerr.Lookupf("index position %d has no image id", pos)
	}
	return id, nil
}

// Captions maps image identifiers to precomputed captions.
type Captions map[string]string

// LoadCaptions reads a {"<image id>": "<caption>"} JSON object.
func LoadCaptions(p string) (Captions, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	var c Captions
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse captions %s: %w", p, err)
	}
	return c, nil
}

// Lookup returns the caption for an image.
func (c Captions) Lookup(imageID string) (string, error) {
	caption, ok := c[imageID]
	if !ok {
		return "", evalerr.Lookupf("image %s has no caption", imageID)
	}
	return caption, nil
}

// PathResolver turns image identifiers into image file paths for a mode.
type PathResolver struct {
	Mode      Mode
	ValRoot   string
	TrainRoot string
}

// DefaultValRoot and DefaultTrainRoot are the image directories used when a
// resolver leaves its roots empty.
const (
	DefaultValRoot   = "val_image"
	DefaultTrainRoot = "playground/data/train_img"
)

// Resolve returns the image file path for an identifier. dev and train images
// share one directory.
func (r PathResolver) Resolve(imageID string) string {
	root := r.TrainRoot
	if root == "" {
		root = DefaultTrainRoot
	}
	if r.Mode == ModeVal {
		root = r.ValRoot
		if root == "" {
			root = DefaultValRoot
		}
	}
	return path.Join(root, imageID+".png")
}
