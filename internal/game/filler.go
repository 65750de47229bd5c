package game

// Pre-written filler keeps the game's pacing when generation fails. The
// cycle never stalls on a narrator outage; a filler line stands in and the
// lifecycle proceeds exactly as if the text had been generated.

var situationFillers = []string{
	"The Don leans back and studies the room. \"Something's moving out there. I can smell it. " +
		"Word reaches me in pieces today, so I'll keep it short: there's trouble coming and money on the table. " +
		"Tell me what you'd do, and don't waste my time.\"",
	"\"My sources are quiet today. Too quiet,\" the Don mutters, pouring himself a drink. " +
		"\"When the street goes silent, somebody is planning something. So plan faster. " +
		"What's our move? Speak up.\"",
	"The Don taps the table twice. \"No news is its own kind of news. We make our own weather today. " +
		"Give me an angle - a job, a favor, a debt to call in. I'm listening.\"",
	"\"The telephone lines are down, figuratively speaking,\" says the Don. \"So we go old school. " +
		"Each of you, tell me one thing we should fix before sundown. Wrong answers cost extra.\"",
}

var resolutionFillers = []string{
	"The Don closes the ledger. \"The day went by without fireworks. Nobody got rich, nobody got buried. " +
		"In this business, that counts as a win. Tomorrow we do better.\"",
	"\"Nothing came of it,\" the Don shrugs. \"The other side blinked, the deal went cold, and we live " +
		"to scheme another day. Get some rest.\"",
	"The Don waves a hand. \"Quiet day. The street kept its mouth shut and so will I. " +
		"Mark it down and move on.\"",
}

var ackFillers = []string{
	"The Don nods slowly. \"Noted.\"",
	"\"I heard you,\" says the Don. \"We'll see.\"",
	"The Don raises an eyebrow, then writes something in his ledger.",
	"\"Interesting,\" murmurs the Don. \"Don't make me regret listening.\"",
}

var dialogFillers = []string{
	"The Don looks at you for a long moment. \"Later. My head is full today.\"",
	"\"Not now,\" the Don says, not unkindly. \"Come find me when the dust settles.\"",
	"The Don gestures at the pile of papers in front of him. \"You see this? This is why I don't chat.\"",
}

var sidelinedFillers = []string{
	"\"You're out of the game for now,\" the Don reminds you. \"Heal up. The street will wait.\"",
	"The Don shakes his head. \"Lying low means lying low. Sit this one out.\"",
}

// pickFiller chooses pseudo-randomly from a pool via the engine's rng.
func (e *Engine) pickFiller(pool []string) string {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return pool[e.rng.Intn(len(pool))]
}
