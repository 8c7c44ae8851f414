package jobs

// Kind is the storage kind of a column, declared once per column.
type Kind int

const (
	// KindText is a VARCHAR or TEXT column holding a string.
	KindText Kind = iota
	// KindInt is an integer column.
	KindInt
	// KindFloat is a floating point column.
	KindFloat
	// KindDate is a DATE column.
	KindDate
	// KindStructured holds a nested object or array, stored as canonical JSON text.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Column describes one column of the jobs table.
type Column struct {
	Name string
	Kind Kind
	// Size is the VARCHAR length; 0 means unbounded TEXT.
	Size int
}

func varchar(name string) Column    { return Column{Name: name, Kind: KindText, Size: 255} }
func text(name string) Column       { return Column{Name: name, Kind: KindText} }
func integer(name string) Column    { return Column{Name: name, Kind: KindInt} }
func float(name string) Column      { return Column{Name: name, Kind: KindFloat} }
func date(name string) Column       { return Column{Name: name, Kind: KindDate} }
func structured(name string) Column { return Column{Name: name, Kind: KindStructured} }

// Columns is the fixed schema of the jobs table, in insert order.
var Columns = []Column{
	varchar("jobType"),
	varchar("jobNo"),
	varchar("jobName"),
	text("jobNameSnippet"),
	varchar("jobRole"),
	varchar("jobRo"),
	varchar("jobAddrNo"),
	varchar("jobAddrNoDesc"),
	text("jobAddress"),
	text("description"),
	text("descWithoutHighlight"),
	varchar("optionEdu"),
	varchar("period"),
	varchar("periodDesc"),
	integer("applyCnt"),
	varchar("applyType"),
	varchar("applyDesc"),
	varchar("custNo"),
	varchar("custName"),
	varchar("coIndustry"),
	varchar("coIndustryDesc"),
	integer("salaryLow"),
	integer("salaryHigh"),
	varchar("salaryDesc"),
	varchar("s10"),
	date("appearDate"),
	varchar("appearDateDesc"),
	varchar("optionZone"),
	integer("isApply"),
	date("applyDate"),
	integer("isSave"),
	text("descSnippet"),
	structured("tags"),
	varchar("landmark"),
	structured("link"),
	varchar("jobsource"),
	text("jobNameRaw"),
	text("custNameRaw"),
	float("lon"),
	float("lat"),
	varchar("remoteWorkType"),
	structured("major"),
	varchar("salaryType"),
	varchar("dist"),
	varchar("mrt"),
	varchar("mrtDesc"),
	varchar(ColumnJobCat),
	varchar(ColumnCode),
	structured(ColumnCondition),
	structured(ColumnJobCategory),
	varchar(ColumnCompanyEmployees),
	varchar(ColumnCompanyCapital),
}

// Columns filled from sources other than the list item.
const (
	ColumnJobCat           = "JobCat"
	ColumnCode             = "code"
	ColumnCondition        = "condition"
	ColumnJobCategory      = "jobCategory"
	ColumnCompanyEmployees = "company_employees"
	ColumnCompanyCapital   = "company_capital"
)

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c.Name] = i
	}
	return m
}()

// ColumnIndex returns the position of a column in Columns, or -1.
func ColumnIndex(name string) int {
	if i, ok := columnIndex[name]; ok {
		return i
	}
	return -1
}

// ColumnNames returns the column names in insert order.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}
