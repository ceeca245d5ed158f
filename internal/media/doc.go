// Package media handles inbound attachments: audio detection for the
// transcription step, the Transcriber contract, prompt note rendering, and
// the sandbox stager that relocates files into the agent workspace.
//
// Nothing here is allowed to fail a turn. Staging and transcription are
// best-effort; on error the caller continues with the original data.
package media
