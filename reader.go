package georaster

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

// A DataRasterReader reads rasters from sources.
type DataRasterReader interface {
	Description() string
	MimeTypes() []string
	Suffixes() []string

	// CanRead returns whether the reader can read source. It is an expected
	// outcome for a reader to be unable to read a source.
	CanRead(source Source, metadata *Metadata) bool

	// Read decodes the rasters in source.
	Read(source Source, metadata *Metadata) ([]DataRaster, error)

	// ReadMetadata returns metadata describing source, starting from a copy
	// of metadata. The result always has a width, height, and sector.
	ReadMetadata(source Source, metadata *Metadata) (*Metadata, error)
}

// A FormatDecoder implements a single raster format.
type FormatDecoder interface {
	Description() string
	MimeTypes() []string
	Suffixes() []string

	// Probe inspects source to determine whether it is in the decoder's
	// format. It is only called for sources that pass the suffix filter.
	Probe(source Source, metadata *Metadata) bool

	// Decode decodes the rasters in source.
	Decode(source Source, metadata *Metadata) ([]DataRaster, error)

	// DecodeMetadata populates metadata from source.
	DecodeMetadata(source Source, metadata *Metadata) error
}

// A FormatReader is a DataRasterReader backed by a FormatDecoder.
type FormatReader struct {
	decoder  FormatDecoder
	suffixes []string
}

// NewDataRasterReader returns a new DataRasterReader that filters sources by
// suffix before probing them with decoder.
func NewDataRasterReader(decoder FormatDecoder) *FormatReader {
	suffixes := make([]string, 0, len(decoder.Suffixes()))
	for _, suffix := range decoder.Suffixes() {
		suffixes = append(suffixes, strings.ToLower(suffix))
	}
	return &FormatReader{
		decoder:  decoder,
		suffixes: suffixes,
	}
}

func (r *FormatReader) Description() string { return r.decoder.Description() }
func (r *FormatReader) MimeTypes() []string { return r.decoder.MimeTypes() }
func (r *FormatReader) Suffixes() []string { return r.decoder.Suffixes() }

// Decoder returns r's decoder.
func (r *FormatReader) Decoder() FormatDecoder {
	return r.decoder
}

// CanRead returns whether r can read source. Sources without a path pass the
// suffix filter.
func (r *FormatReader) CanRead(source Source, metadata *Metadata) bool {
	if source == nil {
		return false
	}
	if source.Path() != "" && !slices.Contains(r.suffixes, sourceSuffix(source)) {
		return false
	}
	return r.decoder.Probe(source, metadata)
}

// Read decodes the rasters in source.
func (r *FormatReader) Read(source Source, metadata *Metadata) ([]DataRaster, error) {
	if !r.CanRead(source, metadata) {
		return nil, r.unsupported(source)
	}
	return r.decoder.Decode(source, metadata.Clone())
}

// ReadMetadata returns metadata describing source.
func (r *FormatReader) ReadMetadata(source Source, metadata *Metadata) (*Metadata, error) {
	if !r.CanRead(source, metadata) {
		return nil, r.unsupported(source)
	}
	m := metadata.Clone()
	if err := r.decoder.DecodeMetadata(source, m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", r.decoder.Description(), source.Key(), err)
	}
	return m, nil
}

func (r *FormatReader) unsupported(source Source) error {
	key := "<nil>"
	if source != nil {
		key = source.Key()
	}
	return fmt.Errorf("%s: %s: %w", r.decoder.Description(), key, ErrUnsupportedFormat)
}

// A ReaderFactory selects readers for sources from an ordered list.
type ReaderFactory struct {
	readers []DataRasterReader
	logger  logrus.FieldLogger
}

// NewReaderFactory returns a new ReaderFactory. Readers are tried in order,
// so narrower readers should precede general purpose ones.
func NewReaderFactory(readers ...DataRasterReader) *ReaderFactory {
	return &ReaderFactory{
		readers: readers,
		logger:  logrus.StandardLogger(),
	}
}

// Readers returns f's readers.
func (f *ReaderFactory) Readers() []DataRasterReader {
	return slices.Clone(f.readers)
}

// FindReader returns the first of f's readers that can read source.
func (f *ReaderFactory) FindReader(source Source, metadata *Metadata) (DataRasterReader, bool) {
	reader, ok := FindReader(source, metadata, f.readers)
	if !ok && source != nil {
		f.logger.WithField("source", source.Key()).Debug("no reader")
	}
	return reader, ok
}

// FindReader returns the first reader in readers that can read source.
func FindReader(source Source, metadata *Metadata, readers []DataRasterReader) (DataRasterReader, bool) {
	for _, reader := range readers {
		if reader.CanRead(source, metadata) {
			return reader, true
		}
	}
	return nil, false
}

// A DecoderOption sets an option on a decoder.
type DecoderOption func(*decoderOptions)

type decoderOptions struct {
	maxDecodeBytes int64
	mipMapping     bool
}

// WithMaxDecodeBytes limits the size of a single decoded raster. Decodes
// that would exceed it fail with ErrOutOfMemory.
func WithMaxDecodeBytes(maxDecodeBytes int64) DecoderOption {
	return func(o *decoderOptions) {
		o.maxDecodeBytes = maxDecodeBytes
	}
}

// WithMipMapping makes image decoders return MipMappedImageRasters.
func WithMipMapping() DecoderOption {
	return func(o *decoderOptions) {
		o.mipMapping = true
	}
}

func newDecoderOptions(options []DecoderOption) decoderOptions {
	var o decoderOptions
	for _, option := range options {
		option(&o)
	}
	return o
}

// checkDecodeBudget returns ErrOutOfMemory if a raster of the given size
// exceeds the decode budget.
func (o decoderOptions) checkDecodeBudget(width, height, bytesPerPixel int) error {
	if o.maxDecodeBytes <= 0 {
		return nil
	}
	if size := int64(width) * int64(height) * int64(bytesPerPixel); size > o.maxDecodeBytes {
		return fmt.Errorf("decoding %d bytes: %w", size, ErrOutOfMemory)
	}
	return nil
}

// DefaultReaders returns readers for every supported format, narrowest
// first.
func DefaultReaders(options ...DecoderOption) []DataRasterReader {
	return []DataRasterReader{
		NewDataRasterReader(NewGeoTIFFDecoder(options...)),
		NewDataRasterReader(NewBILDecoder(options...)),
		NewDataRasterReader(NewImageDecoder(options...)),
	}
}
