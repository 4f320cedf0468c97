package web

import (
	"bytes"
	"html/template"

	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/raine/image-analysis-app/internal/render"
)

// DefaultPrompt pre-fills the prompt input.
const DefaultPrompt = "dog and cat playing football"

const (
	sectionGenerate = "generate"
	sectionCaption  = "caption"
	sectionDetect   = "detect"
)

// notice is a message shown under one section of the page.
type notice struct {
	Section string
	Kind    string // "warning" or "error"
	Text    string
}

type pageData struct {
	Prompt       string
	ImageURL     string
	Caption      string
	AnnotatedPNG template.URL
	Detections   []inference.Detection
	Notice       *notice
}

// noticeFor returns the notice to show under section, if any.
func (d pageData) noticeFor(section string) *notice {
	if d.Notice != nil && d.Notice.Section == section {
		return d.Notice
	}
	return nil
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"label":  render.LabelText,
	"notice": pageData.noticeFor,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Image Analysis App</title>
<style>
body { font-family: sans-serif; margin: 2rem auto; max-width: 1100px; }
section { margin-bottom: 2rem; }
input[type=text] { width: 60%; padding: .4rem; }
button { padding: .4rem 1rem; }
img { max-width: 100%; }
.warning { background: #fff4ce; padding: .6rem; border-radius: 4px; }
.error { background: #fde7e9; padding: .6rem; border-radius: 4px; }
</style>
</head>
<body>
<h1>Image Analysis App</h1>

<section>
<h2>1. Generate Image</h2>
<form method="post" action="/generate">
<label for="prompt">Enter prompt for image generation:</label><br>
<input type="text" id="prompt" name="prompt" value="{{.Prompt}}">
<button type="submit">Generate Image</button>
</form>
{{with notice $ "generate"}}<p class="{{.Kind}}">{{.Text}}</p>{{end}}
{{if .ImageURL}}<figure><img src="{{.ImageURL}}" alt="Generated Image"><figcaption>Generated Image</figcaption></figure>{{end}}
</section>

<section>
<h2>2. Generate Description</h2>
<form method="post" action="/caption">
<input type="hidden" name="prompt" value="{{.Prompt}}">
<button type="submit">Generate Caption</button>
</form>
{{with notice $ "caption"}}<p class="{{.Kind}}">{{.Text}}</p>{{end}}
{{if .Caption}}<p>Caption: {{.Caption}}</p>{{end}}
</section>

<section>
<h2>3. Detect Objects</h2>
<form method="post" action="/detect">
<input type="hidden" name="prompt" value="{{.Prompt}}">
<button type="submit">Detect Objects</button>
</form>
{{with notice $ "detect"}}<p class="{{.Kind}}">{{.Text}}</p>{{end}}
{{if .AnnotatedPNG}}<img src="{{.AnnotatedPNG}}" alt="Detected objects">
<ul>{{range .Detections}}<li>{{label .}}</li>{{end}}</ul>{{end}}
</section>
</body>
</html>
`))

func renderPage(data pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
