package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DB      string `long:"db" description:"Path to the database file (overrides config)"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable debug logging"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand shows archive statistics, sync watermarks and config summary.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// SearchCommand lists watch events matching a query and filters.
type SearchCommand struct {
	Since   string   `long:"since" description:"Only events newer than duration (e.g., 7d, 24h, 2w)"`
	Until   string   `long:"until" description:"Only events older than duration"`
	From    string   `long:"from" description:"Only events on or after date (YYYY-MM-DD or RFC 3339)"`
	To      string   `long:"to" description:"Only events on or before date (YYYY-MM-DD or RFC 3339)"`
	Tag     []string `long:"tag" description:"Filter by tag name (repeatable)"`
	AllTags bool     `long:"all-tags" description:"Require every --tag instead of any"`
	NoAds   bool     `long:"no-ads" description:"Exclude ads"`
	Sort    string   `long:"sort" description:"Sort field" choice:"watchedAt" choice:"title" choice:"channelName" default:"watchedAt"`
	Asc     bool     `long:"asc" description:"Sort ascending (default is descending)"`
	Limit   int      `long:"limit" description:"Maximum results (default from config)"`
	Offset  int      `long:"offset" description:"Skip first N results" default:"0"`

	globals *GlobalFlags
	version string
}

// ShowCommand prints one watch event with its notes and tags.
type ShowCommand struct {
	Args struct {
		ID int64 `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// DeleteCommand removes one watch event with its notes and tag links.
type DeleteCommand struct {
	Args struct {
		ID int64 `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// NoteAddCommand attaches a note to an event.
type NoteAddCommand struct {
	Args struct {
		EventID int64    `positional-arg-name:"event-id" required:"yes"`
		Text    []string `positional-arg-name:"text" required:"1"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// NoteListCommand lists an event's notes, newest first.
type NoteListCommand struct {
	Args struct {
		EventID int64 `positional-arg-name:"event-id" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// NoteEditCommand replaces a note's content.
type NoteEditCommand struct {
	Args struct {
		NoteID int64    `positional-arg-name:"note-id" required:"yes"`
		Text   []string `positional-arg-name:"text" required:"1"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// NoteRemoveCommand deletes a note, or every note of an event with --event.
type NoteRemoveCommand struct {
	Event bool `long:"event" description:"Treat the id as an event id and remove all its notes"`
	Args  struct {
		ID int64 `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TagCreateCommand creates a tag.
type TagCreateCommand struct {
	Color string `long:"color" description:"Display color, e.g. #3b82f6"`
	Args  struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TagListCommand lists tags with their event counts.
type TagListCommand struct {
	Search string `long:"search" description:"Only tags whose name contains this text"`

	globals *GlobalFlags
}

// TagRenameCommand renames a tag.
type TagRenameCommand struct {
	Args struct {
		Name    string `positional-arg-name:"name" required:"yes"`
		NewName string `positional-arg-name:"new-name" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TagColorCommand sets or clears a tag's color.
type TagColorCommand struct {
	Args struct {
		Name  string `positional-arg-name:"name" required:"yes"`
		Color string `positional-arg-name:"color"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TagRemoveCommand deletes a tag and its associations.
type TagRemoveCommand struct {
	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TagAssignCommand tags one or more events.
type TagAssignCommand struct {
	Create bool `long:"create" description:"Create the tag if it does not exist"`
	Args   struct {
		Name     string  `positional-arg-name:"name" required:"yes"`
		EventIDs []int64 `positional-arg-name:"event-id" required:"1"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TagUnassignCommand untags one or more events.
type TagUnassignCommand struct {
	Args struct {
		Name     string  `positional-arg-name:"name" required:"yes"`
		EventIDs []int64 `positional-arg-name:"event-id" required:"1"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TagSetCommand replaces an event's tags, creating missing ones.
type TagSetCommand struct {
	Args struct {
		EventID int64    `positional-arg-name:"event-id" required:"yes"`
		Names   []string `positional-arg-name:"name"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// ExportCommand writes the archive in the portable line format.
type ExportCommand struct {
	Output string `short:"o" long:"output" description:"Output file (default stdout)" default:"-"`

	globals *GlobalFlags
}

// ImportCommand reads a portable export back into the archive.
type ImportCommand struct {
	Args struct {
		File string `positional-arg-name:"file" description:"Portable export file, or - for stdin" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// TakeoutCommand ingests a Takeout watch-history.json file.
type TakeoutCommand struct {
	Args struct {
		File string `positional-arg-name:"file" description:"watch-history.json, or - for stdin" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// SyncCommand applies a scrape feed, or prints the sync checkpoint.
type SyncCommand struct {
	Checkpoint bool `long:"checkpoint" description:"Print the newest stored watch time and exit"`
	Args       struct {
		File string `positional-arg-name:"file" description:"Scrape feed JSON array, or - for stdin"`
	} `positional-args:"yes"`

	globals *GlobalFlags
}

// PruneCommand removes events older than a cutoff.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Override retention period (e.g., 365d)"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
}

// PurgeCommand deletes ALL archive data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
}
