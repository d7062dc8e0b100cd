package reporting

// ReportTemplate is the self-contained HTML report. All styling is inline and
// screenshots are embedded as data URIs so the file can be mailed or archived
// without side-car assets. Videos stay on disk and are linked via file://.
const ReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>WebProbe Report | {{.Run.RunID}}</title>
    <style>
        body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f7f8fa; color: #1f2937; }
        header { background: #fff; border-bottom: 1px solid #e5e7eb; padding: 16px 32px; }
        header h1 { margin: 0; font-size: 20px; }
        header p { margin: 4px 0 0; color: #6b7280; font-size: 13px; }
        main { max-width: 1100px; margin: 0 auto; padding: 24px 32px; }
        .cards { display: flex; gap: 16px; flex-wrap: wrap; margin-bottom: 24px; }
        .card { background: #fff; border-radius: 8px; box-shadow: 0 1px 2px rgba(0,0,0,0.06); padding: 16px 20px; min-width: 120px; }
        .card .label { color: #6b7280; font-size: 12px; }
        .card .value { font-size: 26px; font-weight: 700; }
        .pass { color: #10b981; } .fail { color: #ef4444; } .skip { color: #9ca3af; } .error { color: #f59e0b; }
        .banner { border-radius: 8px; padding: 16px 20px; margin-bottom: 24px; }
        .banner.regressions { background: #fee2e2; border-left: 4px solid #ef4444; }
        .banner.ai { background: #eef2ff; border-left: 4px solid #6366f1; white-space: pre-wrap; }
        section h2 { font-size: 16px; margin: 24px 0 12px; }
        .test { background: #fff; border-radius: 8px; box-shadow: 0 1px 2px rgba(0,0,0,0.06); margin-bottom: 12px; padding: 16px 20px; }
        .test .head { display: flex; justify-content: space-between; align-items: baseline; }
        .test .name { font-weight: 600; }
        .test .meta { color: #6b7280; font-size: 12px; }
        .reason { color: #b91c1c; font-size: 13px; margin-top: 8px; }
        .flaky { display: inline-block; background: #fef3c7; color: #92400e; border-radius: 9999px; padding: 1px 10px; font-size: 11px; margin-left: 8px; }
        .shots { display: flex; gap: 8px; flex-wrap: wrap; margin-top: 12px; }
        .shots img { max-width: 220px; max-height: 140px; border: 1px solid #e5e7eb; border-radius: 4px; }
        table { border-collapse: collapse; width: 100%; background: #fff; border-radius: 8px; overflow: hidden; }
        th, td { text-align: left; padding: 8px 14px; border-bottom: 1px solid #f3f4f6; font-size: 13px; }
        th { background: #f9fafb; color: #6b7280; font-weight: 600; }
        a { color: #2563eb; }
    </style>
</head>
<body>
    <header>
        <h1>WebProbe Report</h1>
        <p>{{.Run.TargetURL}} &middot; run {{.Run.RunID}} &middot; {{.Run.CompletedAt.Format "Jan 2, 2006 15:04"}} &middot; {{.DurationText}}</p>
    </header>
    <main>
        <div class="cards">
            <div class="card"><div class="label">Total</div><div class="value">{{.Run.Totals.Total}}</div></div>
            <div class="card"><div class="label">Passed</div><div class="value pass">{{.Run.Totals.Passed}}</div></div>
            <div class="card"><div class="label">Failed</div><div class="value fail">{{.Run.Totals.Failed}}</div></div>
            <div class="card"><div class="label">Errors</div><div class="value error">{{.Run.Totals.Errors}}</div></div>
            <div class="card"><div class="label">Skipped</div><div class="value skip">{{.Run.Totals.Skipped}}</div></div>
            {{if .Registry}}<div class="card"><div class="label">Coverage</div><div class="value">{{percent .Registry.GlobalStats.OverallScore}}</div></div>{{end}}
        </div>

        {{if .Regressions}}
        <div class="banner regressions">
            <strong>{{len .Regressions}} regression(s) since the previous run</strong>
            <ul>
            {{range .Regressions}}<li>{{.TestName}}: {{.Previous}} &rarr; {{.Current}}{{if .FailureReason}} &mdash; {{.FailureReason}}{{end}}</li>{{end}}
            </ul>
        </div>
        {{end}}

        {{if .Run.AISummary}}<div class="banner ai">{{.Run.AISummary}}</div>{{end}}

        <section>
            <h2>Test Results</h2>
            {{range .Tests}}
            <div class="test">
                <div class="head">
                    <span class="name {{.Result}}">{{statusGlyph .Result}} {{.Name}}{{if .PotentiallyFlaky}}<span class="flaky">possibly flaky</span>{{end}}</span>
                    <span class="meta">{{.Category}} &middot; P{{.Priority}} &middot; {{durationMs .Duration}}</span>
                </div>
                {{if .FailureReason}}<div class="reason">{{.FailureReason}}</div>{{end}}
                {{if .Screenshots}}
                <div class="shots">{{range .Screenshots}}<img src="{{.}}" alt="screenshot">{{end}}</div>
                {{end}}
                {{if .VideoHref}}<p class="meta"><a href="{{.VideoHref}}">Recorded video</a></p>{{end}}
            </div>
            {{end}}
        </section>

        {{if .Registry}}
        <section>
            <h2>Coverage by Category</h2>
            <table>
                <tr><th>Category</th><th>Score</th></tr>
                {{range $cat, $score := .Registry.GlobalStats.CategoryScores}}
                <tr><td>{{$cat}}</td><td>{{percent $score}}</td></tr>
                {{end}}
            </table>
        </section>
        {{end}}
    </main>
</body>
</html>
`
