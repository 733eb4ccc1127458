package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/kart-io/docqa/internal/pkg/docutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

const (
	// VectorsFile 向量文件名。
	VectorsFile = "vectors.bin"
	// ChunksFile 元数据文件名。
	ChunksFile = "chunks.json"

	vectorsMagic   = "DQIX"
	vectorsVersion = uint32(2)
	headerSize     = 32
)

// snapshot 是索引的一份不可变快照，vectors[i] 对应 chunks[i]。
type snapshot struct {
	dim     int
	chunks  []Chunk
	vectors [][]float32
}

// chunksFile 是 chunks.json 的结构，Generation 与向量文件头中的批次号一致。
type chunksFile struct {
	Generation string  `json:"generation"`
	Chunks     []Chunk `json:"chunks"`
}

// saveSnapshot 以同一批次号依次原子写入向量文件和元数据文件。
// 元数据写入失败时恢复原向量文件；两次写入之间崩溃留下的批次号不一致的文件在加载时按损坏处理。
func saveSnapshot(dir string, s *snapshot) error {
	vectorsPath := filepath.Join(dir, VectorsFile)
	gen := ulid.Make()

	chunks := s.chunks
	if chunks == nil {
		chunks = []Chunk{}
	}
	data, err := json.MarshalIndent(chunksFile{Generation: gen.String(), Chunks: chunks}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", ChunksFile, err)
	}

	prev, err := os.ReadFile(vectorsPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", VectorsFile, err)
	}
	hadPrev := err == nil

	if err := docutil.WriteAtomic(vectorsPath, 0o644, func(w io.Writer) error {
		return writeVectors(w, gen, s.dim, s.vectors)
	}); err != nil {
		return fmt.Errorf("write %s: %w", VectorsFile, err)
	}

	if err := docutil.WriteFileAtomic(filepath.Join(dir, ChunksFile), data, 0o644); err != nil {
		if rerr := restoreVectors(vectorsPath, prev, hadPrev); rerr != nil {
			return fmt.Errorf("write %s: %w (restore %s: %v)", ChunksFile, err, VectorsFile, rerr)
		}
		return fmt.Errorf("write %s: %w", ChunksFile, err)
	}
	return nil
}

func restoreVectors(path string, prev []byte, hadPrev bool) error {
	if !hadPrev {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return docutil.WriteFileAtomic(path, prev, 0o644)
}

func writeVectors(w io.Writer, gen ulid.ULID, dim int, vectors [][]float32) error {
	bw := bufio.NewWriter(w)

	var header [headerSize]byte
	copy(header[0:4], vectorsMagic)
	binary.LittleEndian.PutUint32(header[4:8], vectorsVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(vectors)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(dim))
	copy(header[16:32], gen[:])
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}

	var buf [4]byte
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector dimension %d does not match %d", len(v), dim)
		}
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(x))
			if _, err := bw.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// loadSnapshot 读取持久化的索引。
// 两个文件都不存在时返回 nil；只存在一个、格式错误、批次号或数量不一致时返回 ErrIndexCorruption。
func loadSnapshot(dir string, wantDim int) (*snapshot, error) {
	vectorsPath := filepath.Join(dir, VectorsFile)
	chunksPath := filepath.Join(dir, ChunksFile)

	hasVectors, err := exists(vectorsPath)
	if err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}
	hasChunks, err := exists(chunksPath)
	if err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}

	switch {
	case !hasVectors && !hasChunks:
		return nil, nil
	case !hasVectors:
		return nil, corruption("%s present without %s", ChunksFile, VectorsFile)
	case !hasChunks:
		return nil, corruption("%s present without %s", VectorsFile, ChunksFile)
	}

	raw, err := os.ReadFile(vectorsPath)
	if err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}
	gen, dim, vectors, err := readVectors(raw)
	if err != nil {
		return nil, corruption("%s: %v", VectorsFile, err)
	}

	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}
	var meta chunksFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, corruption("%s: %v", ChunksFile, err)
	}
	if meta.Generation != gen.String() {
		return nil, corruption("%s generation %q does not match %s generation %q",
			ChunksFile, meta.Generation, VectorsFile, gen.String())
	}
	chunks := meta.Chunks

	if len(chunks) != len(vectors) {
		return nil, corruption("%d vectors but %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) > 0 && wantDim > 0 && dim != wantDim {
		return nil, corruption("stored dimension %d does not match configured %d", dim, wantDim)
	}

	return &snapshot{dim: dim, chunks: chunks, vectors: vectors}, nil
}

func readVectors(raw []byte) (ulid.ULID, int, [][]float32, error) {
	var gen ulid.ULID
	if len(raw) < headerSize {
		return gen, 0, nil, fmt.Errorf("truncated header")
	}
	if !bytes.Equal(raw[0:4], []byte(vectorsMagic)) {
		return gen, 0, nil, fmt.Errorf("bad magic %q", raw[0:4])
	}
	if v := binary.LittleEndian.Uint32(raw[4:8]); v != vectorsVersion {
		return gen, 0, nil, fmt.Errorf("unsupported version %d", v)
	}
	count := int(binary.LittleEndian.Uint32(raw[8:12]))
	dim := int(binary.LittleEndian.Uint32(raw[12:16]))
	copy(gen[:], raw[16:32])

	if count > 0 && dim == 0 {
		return gen, 0, nil, fmt.Errorf("zero dimension with %d vectors", count)
	}
	want := int64(headerSize) + int64(count)*int64(dim)*4
	if int64(len(raw)) != want {
		return gen, 0, nil, fmt.Errorf("size %d does not match header (want %d)", len(raw), want)
	}

	vectors := make([][]float32, count)
	off := headerSize
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
			off += 4
		}
		vectors[i] = v
	}
	return gen, dim, vectors, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func corruption(format string, args ...any) error {
	return errors.ErrIndexCorruption.WithCause(fmt.Errorf(format, args...))
}
