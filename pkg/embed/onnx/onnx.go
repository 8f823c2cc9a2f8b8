// Package onnx runs a local sentence-embedding model (an all-MiniLM-L6-v2
// class BERT encoder exported to ONNX) through onnxruntime.
package onnx

import (
	"context"
	"fmt"
	"math"

	"github.com/memctl/memctl/pkg/embed"
	ort "github.com/yalue/onnxruntime_go"
)

const maxSeqLen = 128

// Config configures the ONNX embedding model.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library. Optional; when empty the
	// runtime's default lookup applies.
	LibraryPath string

	// Dimensions is the embedding vector size (default 384).
	Dimensions int
}

// Model embeds text with a local ONNX session. Satisfies embed.Model.
type Model struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
	dim       int
}

// Loader returns an embed.Loader that builds the model on first use.
func Loader(cfg Config) embed.Loader {
	return func(ctx context.Context) (embed.Model, error) {
		return New(cfg)
	}
}

// New loads the tokenizer and creates the inference session.
func New(cfg Config) (*Model, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("tokenizer path is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnx runtime: %w", err)
		}
	}

	tokenizer, err := loadWordPieceTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &Model{
		session:   session,
		tokenizer: tokenizer,
		dim:       cfg.Dimensions,
	}, nil
}

// Dim returns the embedding dimension.
func (m *Model) Dim() int {
	return m.dim
}

// Close destroys the inference session.
func (m *Model) Close() error {
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

// Encode embeds a batch of texts in one inference pass and returns the
// pooled, unit-normalized vectors as a flat buffer of len(texts)*Dim values.
func (m *Model) Encode(ctx context.Context, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := len(texts)
	inputIDs := make([]int64, batch*maxSeqLen)
	attentionMask := make([]int64, batch*maxSeqLen)
	tokenTypeIDs := make([]int64, batch*maxSeqLen)

	for b, text := range texts {
		tokens := m.tokenizer.Tokenize(text)
		if len(tokens) > maxSeqLen-2 {
			tokens = tokens[:maxSeqLen-2]
		}

		base := b * maxSeqLen
		inputIDs[base] = int64(m.tokenizer.clsToken)
		attentionMask[base] = 1
		for i, tok := range tokens {
			inputIDs[base+1+i] = tok
			attentionMask[base+1+i] = 1
		}
		inputIDs[base+1+len(tokens)] = int64(m.tokenizer.sepToken)
		attentionMask[base+1+len(tokens)] = 1
	}

	shape := ort.NewShape(int64(batch), maxSeqLen)
	inputTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{inputTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	return m.pool(outTensor, attentionMask, batch)
}

// pool mean-pools token states into one vector per text and normalizes each
// to unit length so cosine similarity reduces to a dot product downstream.
func (m *Model) pool(t *ort.Tensor[float32], attentionMask []int64, batch int) ([]float32, error) {
	data := t.GetData()
	shape := t.GetShape()

	switch len(shape) {
	case 2:
		// Model already pools: [batch, dim]
		if int(shape[0]) != batch || int(shape[1]) != m.dim {
			return nil, fmt.Errorf("unexpected pooled output shape %v", shape)
		}
		out := make([]float32, batch*m.dim)
		copy(out, data[:batch*m.dim])
		for b := 0; b < batch; b++ {
			normalize(out[b*m.dim : (b+1)*m.dim])
		}
		return out, nil

	case 3:
		// Raw hidden states: [batch, seq, dim], mean over attended tokens
		seqLen := int(shape[1])
		if int(shape[0]) != batch || int(shape[2]) != m.dim {
			return nil, fmt.Errorf("unexpected output shape %v", shape)
		}

		out := make([]float32, batch*m.dim)
		for b := 0; b < batch; b++ {
			vec := out[b*m.dim : (b+1)*m.dim]
			attended := float32(0)
			for i := 0; i < seqLen; i++ {
				if attentionMask[b*maxSeqLen+i] == 0 {
					continue
				}
				attended++
				offset := (b*seqLen + i) * m.dim
				for j := 0; j < m.dim; j++ {
					vec[j] += data[offset+j]
				}
			}
			if attended > 0 {
				for j := range vec {
					vec[j] /= attended
				}
			}
			normalize(vec)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

func normalize(vec []float32) {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
}
