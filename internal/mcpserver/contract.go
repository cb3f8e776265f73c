package mcpserver

// ArtifactFormat describes the four lookup tables the catalog is built from.
// It is served as the syllabus://artifact-format resource so that clients can
// explain where an answer came from.
const ArtifactFormat = `# Syllabus artifact format

The catalog is built from four tables. In a CSV data directory each table is
a file with a header row; in a SQLite source each is a table of the same name
without the .csv extension. Header names are matched case-insensitively and
spaces or dashes count as underscores. Columns not listed here are ignored.

Each column may also be given under the name the upstream export pipeline
uses (second column of each table below). The short name wins when both are
present.

Cells reading nan, none, null, [] or blank are treated as empty. Numbers that
are not finite or are negative are ignored.

## majors_results.csv

| column      | also read from                  | required |
|-------------|---------------------------------|----------|
| major_id    | major_code                      | yes      |
| major_name  | result_title, programme_title   | yes      |
| search_text | search_blob                     | no (extra text programme search matches) |

## majors_metadata.csv

| column      | also read from       | required |
|-------------|----------------------|----------|
| major_id    | major_code           | yes      |
| name        | programme_title      | no (used when major_name is empty) |
| faculty     |                      | no       |
| award       | programme_award      | no       |
| level       | programme_level      | no       |
| duration    | programme_duration   | no       |
| attendance  | programme_attendance | no       |
| url         | programme_url        | no (ignored unless a valid URL) |
| stage_count |                      | no (derived from memberships when empty) |

## modules_by_major.csv

| column         | also read from          | required |
|----------------|-------------------------|----------|
| major_id       | major_code              | yes      |
| module_id      | module_code             | yes      |
| stage          | sort_stage, module_stage | yes (3.0 reads as 3) |
| classification | module_type             | yes (core or option; compulsory/optional also accepted) |

## module_details.csv

| column                   | also read from                   | required |
|--------------------------|----------------------------------|----------|
| module_id                | module_code                      | yes      |
| title                    | module_title                     | yes      |
| description              | module_description               | no       |
| credits                  | module_credits                   | no       |
| trimester                | module_trimester                 | no       |
| coordinator              | module_coordinator_name          | no       |
| level                    | module_level                     | no       |
| school                   | module_school                    | no       |
| prerequisites            | has_prerequisite_modules         | no       |
| corequisites             | has_corequisite_modules          | no       |
| incompatibilities        | has_incompatible_modules         | no       |
| learning_requirements    | has_learning_requirement_modules | no       |
| similar_modules          |                                  | no       |
| similar_same_school      | top_n_modules_same_school        | no       |
| similar_different_school | top_n_modules_different_school   | no       |

Constraint columns hold a JSON array of {"modules": [...], "condition": "..."}
objects, a JSON array of module ids, or free text that is kept as a condition.
Lists written with single quotes are read as JSON.

Similarity columns hold a JSON array of {"module_id": "...", "score": 0.9}
objects, [id, score] pairs, or bare ids in ranked order (scored n/n, (n-1)/n
and so on), or the text form ID:score;ID:score. Scores that are not finite
are skipped.

The reverse lists (which modules a module is a prerequisite, corequisite or
learning requirement for) are derived from the constraint columns, so
prerequisite_module_for and similar upstream columns are not read.

Module ids referenced by constraints or similarity lists that are not in
module_details.csv are reported as unresolved and shown by their raw id.
`
