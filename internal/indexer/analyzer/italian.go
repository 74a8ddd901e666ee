package analyzer

import (
	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/italian"
)

// Italian stems with the Snowball Italian algorithm and removes the Snowball
// Italian stop list plus the elided forms left behind when apostrophes split
// words such as "dell'anno".
type Italian struct {
	stop map[string]struct{}
}

func NewItalian() *Italian {
	return &Italian{stop: stopSet(italianStopWords)}
}

func (*Italian) Name() string { return "italian" }

func (p *Italian) IsStopWord(word string) bool {
	_, ok := p.stop[word]
	return ok
}

func (*Italian) Stem(word string) string {
	env := snowballstem.NewEnv(word)
	italian.Stem(env)
	return env.Current()
}

var italianStopWords = []string{
	// articles, prepositions and their contractions
	"a", "ad", "al", "allo", "ai", "agli", "all", "agl", "alla", "alle",
	"con", "col", "coi", "da", "dal", "dallo", "dai", "dagli", "dall", "dagl",
	"dalla", "dalle", "di", "del", "dello", "dei", "degli", "dell", "degl",
	"della", "delle", "in", "nel", "nello", "nei", "negli", "nell", "negl",
	"nella", "nelle", "su", "sul", "sullo", "sui", "sugli", "sull", "sugl",
	"sulla", "sulle", "per", "tra", "fra", "contro",
	"il", "lo", "la", "i", "gli", "le", "l", "un", "uno", "una", "d",
	// pronouns and possessives
	"io", "tu", "lui", "lei", "noi", "voi", "loro", "mio", "mia", "miei",
	"mie", "tuo", "tua", "tuoi", "tue", "suo", "sua", "suoi", "sue",
	"nostro", "nostra", "nostri", "nostre", "vostro", "vostra", "vostri",
	"vostre", "mi", "ti", "ci", "vi", "li", "ne", "si", "c", "m", "t", "s", "v",
	// conjunctions and adverbs
	"e", "ed", "o", "ma", "se", "perché", "anche", "come", "dov", "dove",
	"che", "chi", "cui", "non", "più", "quale", "quanto", "quanti", "quanta",
	"quante", "quello", "quelli", "quella", "quelle", "quell", "questo",
	"questi", "questa", "queste", "tutto", "tutti", "sia", "già", "poi",
	// avere
	"ho", "hai", "ha", "abbiamo", "avete", "hanno", "abbia", "abbiate",
	"abbiano", "avrò", "avrai", "avrà", "avremo", "avrete", "avranno",
	"avevo", "avevi", "aveva", "avevamo", "avevate", "avevano", "ebbi",
	"avesti", "ebbe", "avemmo", "aveste", "ebbero", "avessi", "avesse",
	"avessimo", "avessero", "avendo", "avuto", "avuta", "avuti", "avute",
	// essere
	"sono", "sei", "è", "siamo", "siete", "sarò", "sarai", "sarà", "saremo",
	"sarete", "saranno", "ero", "eri", "era", "eravamo", "eravate", "erano",
	"fui", "fosti", "fu", "fummo", "foste", "furono", "fossi", "fosse",
	"fossimo", "fossero", "essendo", "stato", "stata", "stati", "state",
}
