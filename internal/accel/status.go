package accel

import "fmt"

// Status is an accelerator API status code. Values follow the OpenCL
// numbering so codes read the same whichever runtime produced them.
type Status int32

const (
	StatusSuccess                    Status = 0
	StatusDeviceNotFound             Status = -1
	StatusDeviceNotAvailable         Status = -2
	StatusCompilerNotAvailable       Status = -3
	StatusMemObjectAllocationFailure Status = -4
	StatusOutOfResources             Status = -5
	StatusOutOfHostMemory            Status = -6
	StatusProfilingInfoNotAvailable  Status = -7
	StatusBuildProgramFailure        Status = -11
	StatusWaitListFailed             Status = -14
	StatusInvalidValue               Status = -30
	StatusInvalidDeviceType          Status = -31
	StatusInvalidPlatform            Status = -32
	StatusInvalidDevice              Status = -33
	StatusInvalidContext             Status = -34
	StatusInvalidQueueProperties     Status = -35
	StatusInvalidCommandQueue        Status = -36
	StatusInvalidHostPtr             Status = -37
	StatusInvalidMemObject           Status = -38
	StatusInvalidBuildOptions        Status = -43
	StatusInvalidProgram             Status = -44
	StatusInvalidProgramExecutable   Status = -45
	StatusInvalidKernelName          Status = -46
	StatusInvalidKernel              Status = -48
	StatusInvalidArgIndex            Status = -49
	StatusInvalidArgValue            Status = -50
	StatusInvalidArgSize             Status = -51
	StatusInvalidKernelArgs          Status = -52
	StatusInvalidWorkDimension       Status = -53
	StatusInvalidWorkGroupSize       Status = -54
	StatusInvalidGlobalOffset        Status = -56
	StatusInvalidEventWaitList       Status = -57
	StatusInvalidEvent               Status = -58
	StatusInvalidOperation           Status = -59
	StatusInvalidBufferSize          Status = -61
	StatusInvalidGlobalWorkSize      Status = -63
	StatusPlatformNotFoundKHR        Status = -1001
)

var statusNames = map[Status]string{
	StatusSuccess:                    "CL_SUCCESS",
	StatusDeviceNotFound:             "CL_DEVICE_NOT_FOUND",
	StatusDeviceNotAvailable:         "CL_DEVICE_NOT_AVAILABLE",
	StatusCompilerNotAvailable:       "CL_COMPILER_NOT_AVAILABLE",
	StatusMemObjectAllocationFailure: "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	StatusOutOfResources:             "CL_OUT_OF_RESOURCES",
	StatusOutOfHostMemory:            "CL_OUT_OF_HOST_MEMORY",
	StatusProfilingInfoNotAvailable:  "CL_PROFILING_INFO_NOT_AVAILABLE",
	StatusBuildProgramFailure:        "CL_BUILD_PROGRAM_FAILURE",
	StatusWaitListFailed:             "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	StatusInvalidValue:               "CL_INVALID_VALUE",
	StatusInvalidDeviceType:          "CL_INVALID_DEVICE_TYPE",
	StatusInvalidPlatform:            "CL_INVALID_PLATFORM",
	StatusInvalidDevice:              "CL_INVALID_DEVICE",
	StatusInvalidContext:             "CL_INVALID_CONTEXT",
	StatusInvalidQueueProperties:     "CL_INVALID_QUEUE_PROPERTIES",
	StatusInvalidCommandQueue:        "CL_INVALID_COMMAND_QUEUE",
	StatusInvalidHostPtr:             "CL_INVALID_HOST_PTR",
	StatusInvalidMemObject:           "CL_INVALID_MEM_OBJECT",
	StatusInvalidBuildOptions:        "CL_INVALID_BUILD_OPTIONS",
	StatusInvalidProgram:             "CL_INVALID_PROGRAM",
	StatusInvalidProgramExecutable:   "CL_INVALID_PROGRAM_EXECUTABLE",
	StatusInvalidKernelName:          "CL_INVALID_KERNEL_NAME",
	StatusInvalidKernel:              "CL_INVALID_KERNEL",
	StatusInvalidArgIndex:            "CL_INVALID_ARG_INDEX",
	StatusInvalidArgValue:            "CL_INVALID_ARG_VALUE",
	StatusInvalidArgSize:             "CL_INVALID_ARG_SIZE",
	StatusInvalidKernelArgs:          "CL_INVALID_KERNEL_ARGS",
	StatusInvalidWorkDimension:       "CL_INVALID_WORK_DIMENSION",
	StatusInvalidWorkGroupSize:       "CL_INVALID_WORK_GROUP_SIZE",
	StatusInvalidGlobalOffset:        "CL_INVALID_GLOBAL_OFFSET",
	StatusInvalidEventWaitList:       "CL_INVALID_EVENT_WAIT_LIST",
	StatusInvalidEvent:               "CL_INVALID_EVENT",
	StatusInvalidOperation:           "CL_INVALID_OPERATION",
	StatusInvalidBufferSize:          "CL_INVALID_BUFFER_SIZE",
	StatusInvalidGlobalWorkSize:      "CL_INVALID_GLOBAL_WORK_SIZE",
	StatusPlatformNotFoundKHR:        "CL_PLATFORM_NOT_FOUND_KHR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CL_UNKNOWN_ERROR_%d", int32(s))
}
