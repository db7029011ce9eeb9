package mcpserver

// CardFormatContract describes how documents compile into flashcards. LLM
// consumers should read it before writing documents meant to be sent.
const CardFormatContract = `# Card Format

Every Markdown header opens a flashcard. The front is the chain of headers
leading to it; the back is the text up to the next header.

## Rules

1. **Start with an H1.** The first ` + "`# Title`" + ` names the deck in standalone mode.
   Text before it is ignored and, without any H1, the document cannot be sent.
2. **Nesting builds the front.** Under ` + "`# Spanish`" + ` and ` + "`## Verbs`" + `, the header
   ` + "`### ser`" + ` produces a card whose front is "Spanish / Verbs / ser".
3. **Siblings replace each other.** A header at the same depth as the previous one
   replaces it in the chain; a shallower header drops everything deeper.
4. **Empty cards are skipped.** A header with no text before the next header
   produces no card.
5. **Reverse cards.** A header whose text is exactly ` + "`<>`" + ` (for example ` + "`## <>`" + `)
   turns the card under it around: the text becomes the question and the
   header chain the answer.
6. **Identity is the header chain.** Renaming a header creates a new card and
   removes the old one; editing only the body updates the card in place.
7. **Frontmatter** may set ` + "`deck`" + ` (overrides the configured deck) and ` + "`title`" + `.

## Example

` + "```" + `markdown
---
deck: Spanish
---

# Spanish

## Verbs

### ser
to be (permanent)

### estar
to be (temporary)

## <>
hola
` + "```" + `

This produces three cards: "Spanish / Verbs / ser", "Spanish / Verbs / estar",
and a reversed card with "hola" on the front and "Spanish" on the back.
`
