package ragengine

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("ragengine: document not found")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("ragengine: unsupported document format")

	// ErrFileTooLarge is returned when a source file exceeds the size bound.
	ErrFileTooLarge = errors.New("ragengine: file exceeds maximum size")

	// ErrPathNotFile is returned when the ingestion path is not a regular file.
	ErrPathNotFile = errors.New("ragengine: path is not a regular file")

	// ErrParseTimeout is returned when parsing exceeds the configured deadline.
	ErrParseTimeout = errors.New("ragengine: parsing timed out")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("ragengine: parsing failed")

	// ErrNoContentToIndex is returned when chunking yields zero chunks.
	ErrNoContentToIndex = errors.New("ragengine: no content to index")

	// ErrEmbeddingCountMismatch is returned when the embedder returns a
	// vector count different from the number of chunks submitted.
	ErrEmbeddingCountMismatch = errors.New("ragengine: embedding count mismatch")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("ragengine: embedding generation failed")

	// ErrVectorStore is returned when a vector store operation fails.
	ErrVectorStore = errors.New("ragengine: vector store error")

	// ErrMetadataStore is returned when a metadata store operation fails.
	ErrMetadataStore = errors.New("ragengine: metadata store error")

	// ErrInvalidLLMResponse is returned when the chat LLM response has no
	// usable content.
	ErrInvalidLLMResponse = errors.New("ragengine: invalid LLM response")

	// ErrLLMServiceError is returned when the chat LLM transport fails.
	ErrLLMServiceError = errors.New("ragengine: LLM service error")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("ragengine: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("ragengine: invalid configuration")
)
