package repository

import "time"

// nowFunc supplies timestamps for raw INSERT statements. Indirection keeps
// clock use in one place and lets tests pin time if they need to.
var nowFunc = time.Now
