package types

const (
	// NotesTreeDepth fixes the height of the append-only notes tree. A depth
	// of 17 gives 2^17 leaf positions per tree.
	NotesTreeDepth = 17

	// MaxNotePayloadSize bounds the encrypted payload carried by a note.
	MaxNotePayloadSize = 4096
)
