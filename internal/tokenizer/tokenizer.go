package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/23skdu/longbow-neurons/internal/gguf"
	"github.com/23skdu/longbow-neurons/internal/logger"
)

const spaceMarker = "Ġ"

// Tokenizer maps text to model token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	VocabSize() int
}

// Vocab is a greedy longest-match tokenizer over a GGUF piece list.
type Vocab struct {
	Tokens []string
	Vocab  map[string]int

	maxPieceLen int
	unk         int
}

// New reads tokenizer.ggml.tokens from a GGUF file.
func New(path string) (*Vocab, error) {
	f, err := gguf.LoadFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	tokens, ok := f.GetStrings("tokenizer.ggml.tokens")
	if !ok {
		return nil, fmt.Errorf("tokenizer.ggml.tokens not found in GGUF")
	}
	return NewVocab(tokens), nil
}

func NewVocab(tokens []string) *Vocab {
	v := &Vocab{
		Tokens: append([]string(nil), tokens...),
		Vocab:  make(map[string]int, len(tokens)),
		unk:    -1,
	}
	for i, s := range tokens {
		if _, dup := v.Vocab[s]; !dup {
			v.Vocab[s] = i
		}
		if len(s) > v.maxPieceLen {
			v.maxPieceLen = len(s)
		}
	}
	if id, ok := v.Vocab["<unk>"]; ok {
		v.unk = id
	}
	return v
}

func (v *Vocab) VocabSize() int {
	return len(v.Tokens)
}

func (v *Vocab) Encode(text string) []int {
	s := strings.ReplaceAll(text, " ", spaceMarker)
	var ids []int
	for i := 0; i < len(s); {
		end := i + v.maxPieceLen
		if end > len(s) {
			end = len(s)
		}
		matched := false
		for ; end > i; end-- {
			if end < len(s) && !utf8.RuneStart(s[end]) {
				continue
			}
			if id, ok := v.Vocab[s[i:end]]; ok {
				ids = append(ids, id)
				i = end
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		_, size := utf8.DecodeRuneInString(s[i:])
		for _, b := range []byte(s[i : i+size]) {
			if id, ok := v.Vocab[fmt.Sprintf("<0x%02X>", b)]; ok {
				ids = append(ids, id)
			} else if v.unk >= 0 {
				ids = append(ids, v.unk)
				break
			} else {
				logger.Log.Debug("Token not found", "piece", s[i:i+size])
				break
			}
		}
		i += size
	}
	return ids
}

func (v *Vocab) Decode(ids []int) string {
	var raw []byte
	for _, id := range ids {
		if id < 0 || id >= len(v.Tokens) {
			continue
		}
		piece := v.Tokens[id]
		if len(piece) == 6 && strings.HasPrefix(piece, "<0x") && strings.HasSuffix(piece, ">") {
			if b, err := strconv.ParseUint(piece[3:5], 16, 8); err == nil {
				raw = append(raw, byte(b))
				continue
			}
		}
		raw = append(raw, piece...)
	}
	return strings.ReplaceAll(string(raw), spaceMarker, " ")
}

// Bytes encodes UTF-8 bytes directly as ids 0-255.
type Bytes struct{}

func (Bytes) VocabSize() int {
	return 256
}

func (Bytes) Encode(text string) []int {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids
}

func (Bytes) Decode(ids []int) string {
	buf := make([]byte, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < 256 {
			buf = append(buf, byte(id))
		}
	}
	return string(buf)
}

// ForVocab picks a piece tokenizer when pieces are available, else bytes.
func ForVocab(pieces []string) Tokenizer {
	if len(pieces) == 0 {
		return Bytes{}
	}
	return NewVocab(pieces)
}
