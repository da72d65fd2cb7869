package ragengine

import "errors"

// ErrKind is one of the closed set of error kinds a caller at an untrusted
// boundary (MCP/HTTP/CLI) is allowed to see. Internal detail — stack frames,
// file paths, third-party error bodies — is never part of it.
type ErrKind string

const (
	KindUnsupportedFileType    ErrKind = "unsupported-file-type"
	KindFileTooLarge           ErrKind = "file-too-large"
	KindPathNotFile            ErrKind = "path-not-file"
	KindParseTimeout           ErrKind = "parse-timeout"
	KindParseFailed            ErrKind = "parse-failed"
	KindNoContentToIndex       ErrKind = "no-content-to-index"
	KindEmbeddingCountMismatch ErrKind = "embedding-count-mismatch"
	KindEmbeddingServiceError  ErrKind = "embedding-service-error"
	KindVectorStoreError       ErrKind = "vector-store-error"
	KindMetadataStoreError     ErrKind = "metadata-store-error"
	KindInvalidLLMResponse     ErrKind = "invalid-llm-response"
	KindLLMServiceError        ErrKind = "llm-service-error"
	KindUnknown                ErrKind = "unknown"
)

// ClassifyError maps a sentinel error (or one wrapping it) to its kind.
func ClassifyError(err error) ErrKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFileType
	case errors.Is(err, ErrFileTooLarge):
		return KindFileTooLarge
	case errors.Is(err, ErrPathNotFile):
		return KindPathNotFile
	case errors.Is(err, ErrParseTimeout):
		return KindParseTimeout
	case errors.Is(err, ErrParsingFailed):
		return KindParseFailed
	case errors.Is(err, ErrNoContentToIndex):
		return KindNoContentToIndex
	case errors.Is(err, ErrEmbeddingCountMismatch):
		return KindEmbeddingCountMismatch
	case errors.Is(err, ErrEmbeddingFailed):
		return KindEmbeddingServiceError
	case errors.Is(err, ErrVectorStore):
		return KindVectorStoreError
	case errors.Is(err, ErrMetadataStore):
		return KindMetadataStoreError
	case errors.Is(err, ErrInvalidLLMResponse):
		return KindInvalidLLMResponse
	case errors.Is(err, ErrLLMServiceError):
		return KindLLMServiceError
	default:
		return KindUnknown
	}
}

// SanitizedError is the boundary-safe representation of an error: a kind
// from the closed set plus a short, user-safe description with no internal
// detail (paths, stack frames, third-party bodies).
type SanitizedError struct {
	Kind    ErrKind `json:"kind"`
	Message string  `json:"message"`
}

func (s SanitizedError) Error() string { return string(s.Kind) + ": " + s.Message }

// SanitizeError strips an internal error down to its kind and a short
// description, safe to return across an untrusted boundary (MCP/HTTP/CLI).
func SanitizeError(err error) *SanitizedError {
	if err == nil {
		return nil
	}
	kind := ClassifyError(err)
	msg := "an internal error occurred"
	switch kind {
	case KindUnsupportedFileType:
		msg = "this file type is not supported"
	case KindFileTooLarge:
		msg = "the file exceeds the maximum allowed size"
	case KindPathNotFile:
		msg = "the given path is not a file"
	case KindParseTimeout:
		msg = "parsing the document took too long"
	case KindParseFailed:
		msg = "the document could not be parsed"
	case KindNoContentToIndex:
		msg = "no indexable content was found in the document"
	case KindEmbeddingCountMismatch, KindEmbeddingServiceError:
		msg = "the embedding service failed"
	case KindVectorStoreError:
		msg = "the vector store failed"
	case KindMetadataStoreError:
		msg = "the metadata store failed"
	case KindInvalidLLMResponse, KindLLMServiceError:
		msg = "the language model service failed"
	}
	return &SanitizedError{Kind: kind, Message: msg}
}
