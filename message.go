package main

const (
	MsgNoImage       = "No image provided"
	MsgNoFilename    = "No image selected"
	MsgInvalidImage  = "Could not process image"
	MsgInvalidUpload = "Invalid multipart upload"
	MsgTooLarge      = "Image too large"
)

const (
	CodeNoImage         = "no_image"
	CodeEmptyFilename   = "empty_filename"
	CodeInvalidImage    = "invalid_image"
	CodeInvalidUpload   = "invalid_request"
	CodeTooLarge        = "too_large"
	CodeProcessingError = "processing_error"
	CodeInternalError   = "internal_error"
)
