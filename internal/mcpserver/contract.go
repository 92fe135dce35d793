package mcpserver

// NoteModelContract describes the morph data model for LLM consumers that
// create or read notes over MCP.
const NoteModelContract = `# Morph Note Data Model

## Identifiers

- A **vault id** is derived from the vault's root path and stays stable
  across restarts.
- A **file id** is path-derived: ` + "`" + `vaultId:/relative/path.md` + "`" + `. Directory ids
  keep a trailing slash (` + "`" + `vaultId:/topics/` + "`" + `). Never invent ids; take them
  from ` + "`" + `list_vaults` + "`" + ` and the vault tree.

## Note

A note is a short text fragment scoped to exactly one vault and one file:

- ` + "`" + `content` + "`" + ` – the note text. Keep it to one actionable observation.
- ` + "`" + `color` + "`" + ` – assigned automatically from a pastel palette.
- ` + "`" + `isInEditor` + "`" + ` / ` + "`" + `position` + "`" + ` – whether the note is placed on the editor
  canvas and where. New notes start outside the editor.
- ` + "`" + `dropped` + "`" + ` – soft deletion; dropped notes stay queryable but leave the
  editor.
- ` + "`" + `embeddingStatus` + "`" + ` – ` + "`" + `""` + "`" + ` (none), ` + "`" + `in_progress` + "`" + `, ` + "`" + `success` + "`" + `,
  ` + "`" + `failure` + "`" + `, or ` + "`" + `cancelled` + "`" + `. It never moves backwards.

## Reasoning

Each suggestion round produces one reasoning trace linking the generated
notes (` + "`" + `noteIds` + "`" + `) to the document title, the elapsed generation time, and
a snapshot of the steering parameters that produced them.

## Steering

Generation parameters: ` + "`" + `authors` + "`" + ` (style references), ` + "`" + `tonality` + "`" + ` (axis
weights that sum to at most 1), ` + "`" + `temperature` + "`" + ` (0 to 1), and
` + "`" + `numSuggestions` + "`" + ` (1 to 8).

## Citation databases

Upload with ` + "`" + `upload_reference` + "`" + `: BibLaTeX (` + "`" + `.bib` + "`" + `) or CSL-JSON
(` + "`" + `.json` + "`" + `), base64-encoded, at most one active per vault (the latest
upload wins).
`
