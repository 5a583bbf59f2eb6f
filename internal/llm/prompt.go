package llm

// systemPrompt instructs the model how to transcribe page images. This is
// a content contract: the model preserves reading order, renders tables
// as Markdown tables, and annotates non-text elements. Deviations degrade
// output quality but are not errors.
const systemPrompt = `You are an OCR assistant. Extract all text from the provided images (Describe images as if you're explaining them to a blind person eg: ` + "`[Image: In this picture, 8 people are posed hugging each other]`" + `), which are attached to the document. Use markdown formatting for:

- Headings (# for main, ## for sub)
- Lists (- for unordered, 1. for ordered)
- Emphasis (* for italics, ** for bold)
- Links ([text](URL))
- Tables (use markdown table format)

For non-text elements, describe them: [Image: Brief description]

Maintain logical flow and use horizontal rules (---) to separate sections if needed. Adjust formatting to preserve readability.

Note any issues or ambiguities at the end of your output.

Be thorough and accurate in transcribing all text content.`

// userPrompt reinforces ordering and completeness across a multi-page batch.
const userPrompt = `Never skip any context! Convert document as is be creative to use markdown effectively to reproduce the same document by using markdown. Translate image text to markdown sequentially. Preserve order and completeness. Separate images with ` + "`---`" + `. No skips or comments. Start with first image immediately.`

// multiPageInstruction precedes the image list when a batch holds more
// than one page.
const multiPageInstruction = `Please perform OCR on the following images. Ensure that the extracted text includes the corresponding page numbers.`
