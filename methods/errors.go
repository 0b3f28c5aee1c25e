package methods

import (
	"errors"
	"fmt"

	"github.com/mnehpets/sheetrpc/automation"
	"github.com/mnehpets/sheetrpc/jsonrpc"
)

// Domain error codes.
const (
	CodeApplicationNotFound = -32000
	CodeWorkbookNotFound    = -32001
	CodeSheetNotFound       = -32002
	CodeRangeError          = -32003
	CodeHostError           = -32004
	CodePermissionDenied    = -32005
	CodeTimeout             = -32006
	CodeChartNotFound       = -32007
	CodeInvalidChartType    = -32008
)

var domainErrors = []struct {
	target  error
	code    int
	message string
}{
	{automation.ErrApplicationNotFound, CodeApplicationNotFound, "Excel application not found"},
	{automation.ErrWorkbookNotFound, CodeWorkbookNotFound, "Workbook not found"},
	{automation.ErrSheetNotFound, CodeSheetNotFound, "Sheet not found"},
	{automation.ErrChartNotFound, CodeChartNotFound, "Chart not found"},
	{automation.ErrChartType, CodeInvalidChartType, "Invalid chart type"},
	{automation.ErrRange, CodeRangeError, "Range error"},
	{automation.ErrPermission, CodePermissionDenied, "Permission denied"},
	{automation.ErrTimeout, CodeTimeout, "Operation timed out"},
	{automation.ErrHost, CodeHostError, "Excel error"},
}

// TranslateError maps automation failures to error objects. It is installed
// on the dispatcher with jsonrpc.WithTranslator. Unknown failures yield nil.
func TranslateError(err error) *jsonrpc.Error {
	var pe *automation.PanicError
	if errors.As(err, &pe) {
		return jsonrpc.StandardError(jsonrpc.CodeInternalError).
			WithDetail(fmt.Sprint(pe.Value)).
			WithData("traceback", string(pe.Stack))
	}
	if errors.Is(err, automation.ErrInvalidArgument) {
		return jsonrpc.InvalidParams("%v", err)
	}
	for _, d := range domainErrors {
		if errors.Is(err, d.target) {
			return jsonrpc.NewError(d.code, d.message).WithDetail(err.Error())
		}
	}
	return nil
}
