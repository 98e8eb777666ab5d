// Package corpustest provides a small in-memory corpus for tests.
package corpustest

import (
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
)

// New returns a small corpus with a handful of verses in every
// volume. Verse ids assigned by the index builder are, in order:
//
//	1 Genesis 1:1     2 Genesis 1:2    3 Exodus 1:1
//	4 Matthew 1:1     5 John 1:1
//	6 1 Nephi 1:1     7 Alma 1:1
//	8 D&C 1:1         9 D&C 2:1
//	10 A of F 1:1     11 A of F 1:2
func New() *corpus.Corpus {
	return &corpus.Corpus{
		OldTestament: corpus.Volume{
			Title: "The Old Testament",
			Slug:  "ot",
			Books: []corpus.Book{
				book("Genesis", "gen",
					"In the beginning God created the heaven and the earth.",
					"And the earth was without form, and void; and darkness was upon the face of the deep.",
				),
				book("Exodus", "ex",
					"Now these are the names of the children of Israel, which came into Egypt; every man and his household came with Jacob.",
				),
			},
		},
		NewTestament: corpus.Volume{
			Title: "The New Testament",
			Slug:  "nt",
			Books: []corpus.Book{
				book("Matthew", "matt",
					"The book of the generation of Jesus Christ, the son of David, the son of Abraham.",
				),
				book("John", "john",
					"In the beginning was the Word, and the Word was with God, and the Word was God.",
				),
			},
		},
		BookOfMormon: corpus.Volume{
			Title: "The Book of Mormon",
			Slug:  "bofm",
			Books: []corpus.Book{
				book("1 Nephi", "1-ne",
					"I, Nephi, having been born of goodly parents, therefore I was taught somewhat in all the learning of my father.",
				),
				book("Alma", "alma",
					"Now it came to pass that in the first year of the reign of the judges over the people of Nephi—king Mosiah having gone the way of all the earth—",
				),
			},
		},
		DoctrineAndCovenants: corpus.Volume{
			Title: "The Doctrine and Covenants",
			Slug:  "dc-testament/dc",
			Sections: []corpus.Section{
				{Number: 1, Reference: "D&C 1", Verses: []corpus.Verse{
					{Number: 1, Reference: "D&C 1:1", Text: "Hearken, O ye people of my church, saith the voice of him who dwells on high."},
				}},
				{Number: 2, Reference: "D&C 2", Verses: []corpus.Verse{
					{Number: 1, Reference: "D&C 2:1", Text: "Behold, I will reveal unto you the Priesthood, by the hand of Elijah the prophet, before the coming of the great and dreadful day of the Lord."},
				}},
			},
		},
		PearlOfGreatPrice: corpus.Volume{
			Title: "The Pearl of Great Price",
			Slug:  "pgp",
			Books: []corpus.Book{
				book("Articles of Faith", "a-of-f",
					"We believe in God, the Eternal Father, and in His Son, Jesus Christ, and in the Holy Ghost.",
					"We believe that men will be punished for their own sins, and not for Adam’s transgression.",
				),
			},
		},
	}
}

func book(name, slug string, texts ...string) corpus.Book {
	verses := make([]corpus.Verse, len(texts))
	for i, text := range texts {
		verses[i] = corpus.Verse{
			Number:    i + 1,
			Reference: name + " 1:" + strconv.Itoa(i+1),
			Text:      text,
		}
	}
	return corpus.Book{
		Name:      name,
		FullTitle: name,
		Slug:      slug,
		Chapters: []corpus.Chapter{
			{Number: 1, Reference: name + " 1", Verses: verses},
		},
	}
}
