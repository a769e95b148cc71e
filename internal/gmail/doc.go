// Package gmail is a thin client for the parts of the Gmail API that the
// mailbox index uses: listing message IDs by search query and fetching
// messages in metadata or full format.
//
// Every call is observed with a span and the google_api_operations
// metrics. Failures are returned as *APIError; nothing is retried.
//
// ExtractBody and DecodeData turn a MIME payload into readable text,
// preferring text/plain over text/html.
package gmail
